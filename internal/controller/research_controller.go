package controller

import (
	"encoding/json"

	"deep-research-be/internal/dto"
	"deep-research-be/internal/pkg/logger"
	"deep-research-be/internal/pkg/serverutils"
	"deep-research-be/internal/service"
	internalWS "deep-research-be/internal/websocket"
	"deep-research-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type IResearchController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Results(ctx *fiber.Ctx) error
	Answer(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	ServeWs(ctx *fiber.Ctx) error
}

type researchController struct {
	researchService service.IResearchService
	hub             *internalWS.Hub
	logger          logger.ILogger
}

func NewResearchController(researchService service.IResearchService, hub *internalWS.Hub, log logger.ILogger) IResearchController {
	return &researchController{
		researchService: researchService,
		hub:             hub,
		logger:          log,
	}
}

func (c *researchController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/research/v1")
	h.Post("sessions", c.Create)
	h.Get("sessions", c.List)
	h.Get("sessions/:id", c.Show)
	h.Get("sessions/:id/results", c.Results)
	h.Get("sessions/:id/answer", c.Answer)
	h.Get("ws/:id", c.ServeWs)
}

func (c *researchController) Create(ctx *fiber.Ctx) error {
	var req dto.StartResearchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.researchService.StartResearch(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Research session started", res))
}

func (c *researchController) Show(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	res, err := c.researchService.GetSession(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *researchController) Results(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	res, err := c.researchService.GetResults(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show results", res))
}

func (c *researchController) Answer(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	answer, err := c.researchService.GetAnswer(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show answer", answer))
}

func (c *researchController) List(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 20)
	offset := ctx.QueryInt("offset", 0)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	res, err := c.researchService.ListSessions(ctx.Context(), limit, offset)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

// ServeWs upgrades the connection and attaches it as an observer of one
// session's progress stream.
func (c *researchController) ServeWs(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	if !c.researchService.SessionLive(id) {
		return store.ErrSessionNotFound
	}

	// New observers get the session's current status as their first frame.
	var initial []byte
	if session, err := c.researchService.GetSession(ctx.Context(), id); err == nil {
		initial, _ = json.Marshal(session)
	}

	if websocket.IsWebSocketUpgrade(ctx) {
		return websocket.New(func(conn *websocket.Conn) {
			c.logger.Info("ResearchController", "Observer connected", map[string]interface{}{"session_id": id})
			internalWS.ServeWs(c.hub, conn, id, initial)
			c.logger.Info("ResearchController", "Observer disconnected", map[string]interface{}{"session_id": id})
		})(ctx)
	}
	return fiber.ErrUpgradeRequired
}

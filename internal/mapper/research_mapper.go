package mapper

import (
	"encoding/json"

	"deep-research-be/internal/entity"
	"deep-research-be/internal/model"
	"deep-research-be/pkg/store"

	"gorm.io/datatypes"
)

type ResearchMapper struct{}

func NewResearchMapper() *ResearchMapper {
	return &ResearchMapper{}
}

// ArchiveToModel serializes a finished session and its stage outputs. Outputs
// that were never produced stay as SQL NULLs.
func (m *ResearchMapper) ArchiveToModel(a *entity.ResearchSessionArchive) (*model.ResearchSessionArchive, error) {
	if a == nil {
		return nil, nil
	}

	sources, err := json.Marshal(a.Sources)
	if err != nil {
		return nil, err
	}

	out := &model.ResearchSessionArchive{
		Id:         a.Id,
		Query:      a.Query,
		Sources:    datatypes.JSON(sources),
		Status:     a.Status,
		Error:      a.Error,
		CreatedAt:  a.CreatedAt,
		FinishedAt: a.FinishedAt,
	}

	if out.Plan, err = marshalOptional(a.Plan); err != nil {
		return nil, err
	}
	if a.Results != nil {
		data, err := json.Marshal(a.Results)
		if err != nil {
			return nil, err
		}
		out.Results = datatypes.JSON(data)
	}
	if out.Feedback, err = marshalOptional(a.Feedback); err != nil {
		return nil, err
	}
	if out.Answer, err = marshalOptional(a.Answer); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *ResearchMapper) ArchiveToEntity(a *model.ResearchSessionArchive) (*entity.ResearchSessionArchive, error) {
	if a == nil {
		return nil, nil
	}

	out := &entity.ResearchSessionArchive{
		Id:         a.Id,
		Query:      a.Query,
		Status:     a.Status,
		Error:      a.Error,
		CreatedAt:  a.CreatedAt,
		FinishedAt: a.FinishedAt,
	}

	if len(a.Sources) > 0 {
		if err := json.Unmarshal(a.Sources, &out.Sources); err != nil {
			return nil, err
		}
	}
	if len(a.Plan) > 0 {
		out.Plan = new(store.ResearchPlan)
		if err := json.Unmarshal(a.Plan, out.Plan); err != nil {
			return nil, err
		}
	}
	if len(a.Results) > 0 {
		if err := json.Unmarshal(a.Results, &out.Results); err != nil {
			return nil, err
		}
	}
	if len(a.Feedback) > 0 {
		out.Feedback = new(store.Feedback)
		if err := json.Unmarshal(a.Feedback, out.Feedback); err != nil {
			return nil, err
		}
	}
	if len(a.Answer) > 0 {
		out.Answer = new(store.Answer)
		if err := json.Unmarshal(a.Answer, out.Answer); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func marshalOptional[T any](v *T) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

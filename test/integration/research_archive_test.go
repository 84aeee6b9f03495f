package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"deep-research-be/internal/entity"
	"deep-research-be/internal/model"
	"deep-research-be/internal/repository/implementation"
	"deep-research-be/pkg/database"
	"deep-research-be/pkg/store"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResearchArchiveRepository(t *testing.T) {
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDB(dsn)
	require.NoError(t, err, "Failed to connect to DB")
	require.NoError(t, gormDB.AutoMigrate(&model.ResearchSessionArchive{}))

	repo := implementation.NewResearchArchiveRepository(gormDB)
	ctx := context.Background()

	sessionId := uuid.New()
	finished := time.Now().UTC().Truncate(time.Second)
	score := 0.82
	archive := &entity.ResearchSessionArchive{
		Id:      sessionId,
		Query:   "integration test query " + sessionId.String(),
		Sources: []string{"google", "arxiv"},
		Status:  store.StatusCompleted,
		Plan: &store.ResearchPlan{
			QueryID:  sessionId,
			Strategy: "comprehensive",
			Keywords: []string{"integration", "archive"},
		},
		Results: []store.ResultItem{
			{Title: "Result A", URL: "https://example.com/a", Source: "google", RelevanceScore: &score},
		},
		Feedback: &store.Feedback{CompletenessScore: 0.82, Sufficient: true},
		Answer: &store.Answer{
			QueryID: sessionId,
			Content: "## Overview\n\nArchived answer [1].",
		},
		CreatedAt:  time.Now().UTC(),
		FinishedAt: &finished,
	}

	t.Cleanup(func() {
		gormDB.Delete(&model.ResearchSessionArchive{}, "id = ?", sessionId)
	})

	t.Run("Save and FindById round-trip", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, archive))

		found, err := repo.FindById(ctx, sessionId)
		require.NoError(t, err)
		require.NotNil(t, found)

		assert.Equal(t, archive.Query, found.Query)
		assert.Equal(t, store.StatusCompleted, found.Status)
		assert.Equal(t, []string{"google", "arxiv"}, found.Sources)
		require.NotNil(t, found.Plan)
		assert.Equal(t, "comprehensive", found.Plan.Strategy)
		require.Len(t, found.Results, 1)
		require.NotNil(t, found.Results[0].RelevanceScore)
		assert.InDelta(t, 0.82, *found.Results[0].RelevanceScore, 1e-9)
		require.NotNil(t, found.Feedback)
		assert.True(t, found.Feedback.Sufficient)
		require.NotNil(t, found.Answer)
		assert.Contains(t, found.Answer.Content, "Archived answer")
		require.NotNil(t, found.FinishedAt)
		assert.WithinDuration(t, finished, *found.FinishedAt, time.Second)
	})

	t.Run("Save is an upsert", func(t *testing.T) {
		updated := *archive
		updated.Status = store.StatusFailed
		updated.Error = "provider quota exceeded"
		require.NoError(t, repo.Save(ctx, &updated))

		found, err := repo.FindById(ctx, sessionId)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, store.StatusFailed, found.Status)
		assert.Equal(t, "provider quota exceeded", found.Error)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, int64(1))
	})

	t.Run("FindById on unknown id returns nil without error", func(t *testing.T) {
		found, err := repo.FindById(ctx, uuid.New())
		assert.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("FindRecent returns newest first", func(t *testing.T) {
		recent, err := repo.FindRecent(ctx, 10, 0)
		require.NoError(t, err)
		require.NotEmpty(t, recent)
		for i := 1; i < len(recent); i++ {
			assert.False(t, recent[i].CreatedAt.After(recent[i-1].CreatedAt))
		}
	})
}

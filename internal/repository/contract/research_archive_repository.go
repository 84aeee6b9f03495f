package contract

import (
	"context"

	"deep-research-be/internal/entity"

	"github.com/google/uuid"
)

type ResearchArchiveRepository interface {
	Save(ctx context.Context, archive *entity.ResearchSessionArchive) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.ResearchSessionArchive, error)
	FindRecent(ctx context.Context, limit, offset int) ([]*entity.ResearchSessionArchive, error)
	Count(ctx context.Context) (int64, error)
}

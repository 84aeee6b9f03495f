package implementation

import (
	"context"
	"errors"

	"deep-research-be/internal/entity"
	"deep-research-be/internal/mapper"
	"deep-research-be/internal/model"
	"deep-research-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResearchArchiveRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewResearchArchiveRepository(db *gorm.DB) contract.ResearchArchiveRepository {
	return &ResearchArchiveRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

func (r *ResearchArchiveRepositoryImpl) Save(ctx context.Context, archive *entity.ResearchSessionArchive) error {
	m, err := r.mapper.ArchiveToModel(archive)
	if err != nil {
		return err
	}
	// Upsert: re-archiving the same session overwrites the previous row.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(m).Error
}

func (r *ResearchArchiveRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.ResearchSessionArchive, error) {
	var m model.ResearchSessionArchive
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ArchiveToEntity(&m)
}

func (r *ResearchArchiveRepositoryImpl) FindRecent(ctx context.Context, limit, offset int) ([]*entity.ResearchSessionArchive, error) {
	var models []*model.ResearchSessionArchive
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	archives := make([]*entity.ResearchSessionArchive, len(models))
	for i, m := range models {
		archives[i], err = r.mapper.ArchiveToEntity(m)
		if err != nil {
			return nil, err
		}
	}
	return archives, nil
}

func (r *ResearchArchiveRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ResearchSessionArchive{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/pkg/database"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

// GormGroupRepository implements GroupRepository using GORM.
type GormGroupRepository struct {
	db *gorm.DB
}

// NewGormGroupRepository creates a new GORM-based group repository.
func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

// List returns groups in creation order.
func (r *GormGroupRepository) List(ctx context.Context) ([]domain.Group, error) {
	var models []domain.GroupModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list groups")
		return nil, err
	}

	groups := make([]domain.Group, len(models))
	for i := range models {
		groups[i] = models[i].ToDomain()
	}
	return groups, nil
}

func (r *GormGroupRepository) Add(ctx context.Context, name string) error {
	if err := r.db.WithContext(ctx).Create(&domain.GroupModel{Name: name}).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldGroup, name).Msg("failed to add group")
		return err
	}
	return nil
}

func (r *GormGroupRepository) Remove(ctx context.Context, name string) (int, error) {
	result := r.db.WithContext(ctx).Where("name = ?", name).Delete(&domain.GroupModel{})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldGroup, name).Msg("failed to remove group")
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrGroupNotFound
	}
	return int(result.RowsAffected), nil
}

// Migrate creates or updates the users and groups tables.
func Migrate(db *gorm.DB) error {
	return database.AutoMigrate(db, &domain.UserModel{}, &domain.GroupModel{})
}

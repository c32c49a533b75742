package pg

import (
	"context"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"zeroone.host/internal/core/domain"
	"zeroone.host/internal/core/ports"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"")

	if err := db.AutoMigrate(&domain.User{}, &domain.Agent{}); err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

var (
	_ ports.AgentRepository = (*Repository)(nil)
	_ ports.UserRepository  = (*Repository)(nil)
)

// Agent methods

func (r *Repository) Create(ctx context.Context, agent *domain.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *Repository) Update(ctx context.Context, agent *domain.Agent) error {
	return r.db.WithContext(ctx).Save(agent).Error
}

func (r *Repository) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.Agent{}).Where("id = ?", id).Updates(fields).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *Repository) GetOwned(ctx context.Context, id, userID string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *Repository) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	if err := r.db.WithContext(ctx).Where("status = ?", status).Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *Repository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Agent{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Agent{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) NameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Agent{}).Where("lower(name) = lower(?)", name).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Agent{}, "id = ?", id).Error
}

// User methods

func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

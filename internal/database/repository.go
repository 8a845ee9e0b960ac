package database

import (
	"github.com/aegismod/aegis/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	behavior *models.BehaviorModel
	action   *models.ActionModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		behavior: models.NewBehavior(db, logger),
		action:   models.NewAction(db, logger),
	}
}

// Behavior returns the behavior model repository.
func (r *Repository) Behavior() *models.BehaviorModel {
	return r.behavior
}

// Action returns the action audit model repository.
func (r *Repository) Action() *models.ActionModel {
	return r.action
}

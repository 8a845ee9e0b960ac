package database

import (
	"github.com/aegismod/aegis/internal/database/service"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	stats *service.StatsService
}

// NewService creates a new service instance with all services.
func NewService(_ *bun.DB, repository *Repository, logger *zap.Logger) *Service {
	return &Service{
		stats: service.NewStats(repository.Behavior(), repository.Action(), logger),
	}
}

// Stats returns the shield statistics service.
func (s *Service) Stats() *service.StatsService {
	return s.stats
}

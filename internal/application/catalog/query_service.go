package catalog

import (
	"context"
	"errors"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultIncidentLimit = 100

// QueryService serves read access to the catalog and the operator incident queue
type QueryService struct {
	items     catalog.CatalogItemRepository
	incidents catalog.IncidentRepository
	logger    *zap.Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(items catalog.CatalogItemRepository, incidents catalog.IncidentRepository, logger *zap.Logger) *QueryService {
	return &QueryService{
		items:     items,
		incidents: incidents,
		logger:    logger,
	}
}

// GetItem returns a catalog item by ID
func (s *QueryService) GetItem(ctx context.Context, id uuid.UUID) (*CatalogItemResponse, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToCatalogItemResponse(item)
	return &resp, nil
}

// ListOpenIncidents returns unresolved incidents, newest first
func (s *QueryService) ListOpenIncidents(ctx context.Context, limit int) ([]IncidentResponse, error) {
	if limit <= 0 || limit > defaultIncidentLimit {
		limit = defaultIncidentLimit
	}
	incidents, err := s.incidents.FindOpen(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list incidents", zap.Error(err))
		return nil, shared.NewTransientError("failed to list incidents", err)
	}
	resp := make([]IncidentResponse, 0, len(incidents))
	for i := range incidents {
		resp = append(resp, ToIncidentResponse(&incidents[i]))
	}
	return resp, nil
}

// ResolveIncident closes an incident once an operator has dealt with it
func (s *QueryService) ResolveIncident(ctx context.Context, id uuid.UUID) error {
	if err := s.incidents.Resolve(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return shared.NewTransientError("failed to resolve incident", err)
	}
	s.logger.Info("Incident resolved", zap.String("incident_id", id.String()))
	return nil
}

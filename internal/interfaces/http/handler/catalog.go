package handler

import (
	"strconv"

	catalogapp "github.com/erp/invsync/internal/application/catalog"
	"github.com/gin-gonic/gin"
)

// CatalogHandler serves catalog items and the incident queue
type CatalogHandler struct {
	BaseHandler
	queryService *catalogapp.QueryService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(queryService *catalogapp.QueryService) *CatalogHandler {
	return &CatalogHandler{
		queryService: queryService,
	}
}

// GetItem godoc
// @ID           getCatalogItem
// @Summary      Get a catalog item by ID
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Catalog item ID" format(uuid)
// @Success      200 {object} APIResponse[catalog.CatalogItemResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /catalog/items/{id} [get]
func (h *CatalogHandler) GetItem(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "catalog item ID")
	if !ok {
		return
	}

	item, err := h.queryService.GetItem(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, item)
}

// ListIncidents godoc
// @ID           listOpenIncidents
// @Summary      List open incidents
// @Description  Unresolved ambiguous-identity, missing-item and invalid-status incidents, newest first
// @Tags         catalog
// @Produce      json
// @Param        limit query int false "Maximum entries" default(100) maximum(100)
// @Success      200 {object} APIResponse[[]catalog.IncidentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /catalog/incidents [get]
func (h *CatalogHandler) ListIncidents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	incidents, err := h.queryService.ListOpenIncidents(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, incidents)
}

// ResolveIncident godoc
// @ID           resolveIncident
// @Summary      Resolve an incident
// @Tags         catalog
// @Param        id path string true "Incident ID" format(uuid)
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /catalog/incidents/{id}/resolve [post]
func (h *CatalogHandler) ResolveIncident(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "incident ID")
	if !ok {
		return
	}

	if err := h.queryService.ResolveIncident(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

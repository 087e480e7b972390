package handler

import (
	intakeapp "github.com/erp/invsync/internal/application/intake"
	"github.com/erp/invsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// LotHandler handles lot intake HTTP requests
type LotHandler struct {
	BaseHandler
	intakeService *intakeapp.Service
}

// NewLotHandler creates a new LotHandler
func NewLotHandler(intakeService *intakeapp.Service) *LotHandler {
	return &LotHandler{
		intakeService: intakeService,
	}
}

// Receive godoc
// @ID           receiveLot
// @Summary      Receive a lot
// @Description  Record a received lot and resolve each line against the catalog
// @Tags         lots
// @Accept       json
// @Produce      json
// @Param        request body ReceiveLotRequest true "Lot"
// @Success      201 {object} APIResponse[intake.LotResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /lots [post]
func (h *LotHandler) Receive(c *gin.Context) {
	var req ReceiveLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	lot, err := h.intakeService.ReceiveLot(c.Request.Context(), req.toCommand())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, lot)
}

// GetByID godoc
// @ID           getLot
// @Summary      Get a lot by ID
// @Tags         lots
// @Produce      json
// @Param        id path string true "Lot ID" format(uuid)
// @Success      200 {object} APIResponse[intake.LotResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /lots/{id} [get]
func (h *LotHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "lot ID")
	if !ok {
		return
	}

	lot, err := h.intakeService.GetLot(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lot)
}

// ConfirmLine godoc
// @ID           confirmLotLine
// @Summary      Confirm a lot line
// @Description  Approve creating a catalog item for a line that matched nothing
// @Tags         lots
// @Accept       json
// @Produce      json
// @Param        id path string true "Lot ID" format(uuid)
// @Param        index path int true "Line index"
// @Param        request body ConfirmLineRequest false "Confirmation"
// @Success      200 {object} APIResponse[intake.LotResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /lots/{id}/lines/{index}/confirm [post]
func (h *LotHandler) ConfirmLine(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "lot ID")
	if !ok {
		return
	}
	index, ok := h.parseIndexParam(c, "index")
	if !ok {
		return
	}

	var req ConfirmLineRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}

	lot, err := h.intakeService.ConfirmLine(c.Request.Context(), intakeapp.ConfirmLineCommand{
		LotID:     id,
		LineIndex: index,
		Operator:  operatorOf(c, req.Operator),
		Price:     req.Price,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lot)
}

// DeclineLine godoc
// @ID           declineLotLine
// @Summary      Decline a lot line
// @Description  Reject a line awaiting confirmation; no catalog item is created
// @Tags         lots
// @Accept       json
// @Produce      json
// @Param        id path string true "Lot ID" format(uuid)
// @Param        index path int true "Line index"
// @Param        request body DeclineLineRequest true "Decline"
// @Success      200 {object} APIResponse[intake.LotResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /lots/{id}/lines/{index}/decline [post]
func (h *LotHandler) DeclineLine(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "lot ID")
	if !ok {
		return
	}
	index, ok := h.parseIndexParam(c, "index")
	if !ok {
		return
	}

	var req DeclineLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	lot, err := h.intakeService.DeclineLine(c.Request.Context(), intakeapp.DeclineLineCommand{
		LotID:     id,
		LineIndex: index,
		Operator:  operatorOf(c, req.Operator),
		Reason:    req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lot)
}

// ResolvePending godoc
// @ID           resolvePendingLotLines
// @Summary      Re-resolve pending lines
// @Description  Retry identity resolution for lines left pending behind an incident
// @Tags         lots
// @Produce      json
// @Param        id path string true "Lot ID" format(uuid)
// @Success      200 {object} APIResponse[intake.LotResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /lots/{id}/resolve [post]
func (h *LotHandler) ResolvePending(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "lot ID")
	if !ok {
		return
	}

	lot, err := h.intakeService.ResolvePending(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lot)
}

// Post godoc
// @ID           postLot
// @Summary      Post a lot
// @Description  Add the quantities of every resolved line to the catalog
// @Tags         lots
// @Produce      json
// @Param        id path string true "Lot ID" format(uuid)
// @Success      200 {object} APIResponse[intake.LotResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /lots/{id}/post [post]
func (h *LotHandler) Post(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "lot ID")
	if !ok {
		return
	}

	lot, err := h.intakeService.PostLot(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lot)
}

package handler

import (
	"time"

	billingapp "github.com/erp/invsync/internal/application/billing"
	"github.com/erp/invsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoice HTTP requests
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billingapp.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
	}
}

// Create godoc
// @ID           createInvoice
// @Summary      Create an invoice
// @Description  Create a draft invoice or quotation
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request body CreateInvoiceRequest true "Invoice"
// @Success      201 {object} APIResponse[billing.InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	inv, err := h.invoiceService.CreateInvoice(c.Request.Context(), req.toCommand())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, inv)
}

// GetByID godoc
// @ID           getInvoice
// @Summary      Get an invoice by ID
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} APIResponse[billing.InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "invoice ID")
	if !ok {
		return
	}

	inv, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inv)
}

// Submit godoc
// @ID           submitInvoice
// @Summary      Submit an invoice for finance review
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} APIResponse[billing.InvoiceResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /invoices/{id}/submit [post]
func (h *InvoiceHandler) Submit(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "invoice ID")
	if !ok {
		return
	}

	inv, err := h.invoiceService.SubmitForReview(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inv)
}

// Approve godoc
// @ID           approveInvoice
// @Summary      Approve an invoice
// @Description  Finance approval; queues a product status update for every line
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body ApproveInvoiceRequest false "Approval"
// @Success      200 {object} APIResponse[billing.InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /invoices/{id}/approve [post]
func (h *InvoiceHandler) Approve(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "invoice ID")
	if !ok {
		return
	}

	var req ApproveInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}

	inv, err := h.invoiceService.Approve(c.Request.Context(), id, operatorOf(c, req.Approver))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inv)
}

// Reject godoc
// @ID           rejectInvoice
// @Summary      Reject an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body RejectInvoiceRequest true "Rejection"
// @Success      200 {object} APIResponse[billing.InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /invoices/{id}/reject [post]
func (h *InvoiceHandler) Reject(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "invoice ID")
	if !ok {
		return
	}

	var req RejectInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	inv, err := h.invoiceService.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inv)
}

// Consolidate godoc
// @ID           consolidateInvoice
// @Summary      Consolidate an approved invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} APIResponse[billing.InvoiceResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /invoices/{id}/consolidate [post]
func (h *InvoiceHandler) Consolidate(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id", "invoice ID")
	if !ok {
		return
	}

	inv, err := h.invoiceService.Consolidate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inv)
}

// ApprovalTransition godoc
// @ID           notifyApprovalTransition
// @Summary      Report a finance approval transition
// @Description  Accepts PENDING_FINANCE_REVIEW -> FINANCE_APPROVED only. Repeated notifications are acknowledged without a second status update.
// @Tags         finance
// @Accept       json
// @Produce      json
// @Param        request body ApprovalTransitionRequest true "Transition"
// @Success      202 {object} APIResponse[ApprovalTransitionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Router       /finance/approval-transitions [post]
func (h *InvoiceHandler) ApprovalTransition(c *gin.Context) {
	var req ApprovalTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	n := req.toNotification(time.Now())
	n.ApprovedBy = operatorOf(c, n.ApprovedBy)

	inv, emitted, err := h.invoiceService.HandleApprovalNotification(c.Request.Context(), n)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, ApprovalTransitionResponse{Invoice: inv, Emitted: emitted})
}

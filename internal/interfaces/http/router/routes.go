package router

import (
	"github.com/erp/invsync/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers are the HTTP handlers mounted on the API
type Handlers struct {
	Lots    *handler.LotHandler
	Invoice *handler.InvoiceHandler
	Catalog *handler.CatalogHandler
	Outbox  *handler.OutboxHandler
	System  *handler.SystemHandler
}

// Groups builds the route groups of the API. approvalGuard runs in front of
// the finance notification endpoint; pass nil for none.
func Groups(h Handlers, approvalGuard gin.HandlerFunc) []RouteRegistrar {
	lots := NewDomainGroup("lots", "/lots").
		POST("", h.Lots.Receive).
		GET("/:id", h.Lots.GetByID).
		POST("/:id/resolve", h.Lots.ResolvePending).
		POST("/:id/post", h.Lots.Post)
	lines := lots.Group("lines", "/:id/lines")
	lines.POST("/:index/confirm", h.Lots.ConfirmLine).
		POST("/:index/decline", h.Lots.DeclineLine)

	invoices := NewDomainGroup("invoices", "/invoices").
		POST("", h.Invoice.Create).
		GET("/:id", h.Invoice.GetByID).
		POST("/:id/submit", h.Invoice.Submit).
		POST("/:id/approve", h.Invoice.Approve).
		POST("/:id/reject", h.Invoice.Reject).
		POST("/:id/consolidate", h.Invoice.Consolidate)

	finance := NewDomainGroup("finance", "/finance")
	if approvalGuard != nil {
		finance.Use(approvalGuard)
	}
	finance.POST("/approval-transitions", h.Invoice.ApprovalTransition)

	catalog := NewDomainGroup("catalog", "/catalog").
		GET("/items/:id", h.Catalog.GetItem).
		GET("/incidents", h.Catalog.ListIncidents).
		POST("/incidents/:id/resolve", h.Catalog.ResolveIncident)

	admin := NewDomainGroup("admin", "/admin")
	admin.Group("outbox", "/outbox").
		GET("/dead", h.Outbox.GetDeadEntries).
		POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries).
		GET("/stats", h.Outbox.GetStats).
		GET("/entries/:id", h.Outbox.GetEntry).
		POST("/entries/:id/retry", h.Outbox.RetryDeadEntry)
	admin.GET("/dead-letters", h.Outbox.GetDeadLetters)

	system := NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping).
		GET("/health", h.System.Health).
		GET("/consumers", h.System.ConsumerStats)

	return []RouteRegistrar{lots, invoices, finance, catalog, admin, system}
}

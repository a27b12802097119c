package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/sales/api/handler"
)

type Handlers struct {
	Sale   *apiHandler.SaleHandler
	Health *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Sales
	r.POST("/api/v1/sales", authMiddleware(handlers.Sale.CreateSale))
	r.GET("/api/v1/sales/{id}", authMiddleware(handlers.Sale.GetSale))
	r.PUT("/api/v1/sales/{id}", authMiddleware(handlers.Sale.UpdateSale))
	r.POST("/api/v1/sales/{id}/confirm", authMiddleware(handlers.Sale.ConfirmSale))
	r.POST("/api/v1/sales/{id}/cancel", authMiddleware(handlers.Sale.CancelSale))

	return r
}

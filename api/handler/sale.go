package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/sales/api/transport"
	"github.com/fastygo/sales/pkg/httpcontext"
	saleUC "github.com/fastygo/sales/usecase/sale"
)

type SaleHandler struct {
	baseHandler
	uc *saleUC.UseCase
}

func NewSaleHandler(uc *saleUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *SaleHandler {
	return &SaleHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Create sale
// @Tags sales
// @Router /api/v1/sales [post]
func (h *SaleHandler) CreateSale(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.CreateSaleRequest
	if !h.decode(stdCtx, ctx, &req) {
		return
	}

	summary, err := h.uc.CreateSale(stdCtx, saleUC.CreateSaleCommand{
		RequestID:  requestID(ctx, req.RequestID),
		CustomerID: req.CustomerID,
		BranchID:   req.BranchID,
		Items:      itemInputs(req.Items),
	})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}

	status := http.StatusCreated
	if summary.Replayed {
		status = http.StatusOK
	}
	h.respondSuccess(ctx, status, summary)
}

// @Summary Replace sale items
// @Tags sales
// @Router /api/v1/sales/{id} [put]
func (h *SaleHandler) UpdateSale(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.UpdateSaleRequest
	if !h.decode(stdCtx, ctx, &req) {
		return
	}

	summary, err := h.uc.UpdateSale(stdCtx, saleUC.UpdateSaleCommand{
		RequestID: requestID(ctx, req.RequestID),
		SaleID:    saleID(ctx),
		Items:     itemInputs(req.Items),
	})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, summary)
}

// @Summary Confirm a sale pending validation
// @Tags sales
// @Router /api/v1/sales/{id}/confirm [post]
func (h *SaleHandler) ConfirmSale(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.ConfirmSaleRequest
	if !h.decode(stdCtx, ctx, &req) {
		return
	}

	summary, err := h.uc.ConfirmSale(stdCtx, saleUC.ConfirmSaleCommand{
		RequestID: requestID(ctx, req.RequestID),
		SaleID:    saleID(ctx),
	})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, summary)
}

// @Summary Cancel sale
// @Tags sales
// @Router /api/v1/sales/{id}/cancel [post]
func (h *SaleHandler) CancelSale(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.CancelSaleRequest
	if !h.decode(stdCtx, ctx, &req) {
		return
	}

	summary, err := h.uc.CancelSale(stdCtx, saleUC.CancelSaleCommand{
		RequestID: requestID(ctx, req.RequestID),
		SaleID:    saleID(ctx),
		Reason:    req.Reason,
	})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, summary)
}

// @Summary Get sale
// @Tags sales
// @Router /api/v1/sales/{id} [get]
func (h *SaleHandler) GetSale(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	summary, err := h.uc.GetSale(stdCtx, saleID(ctx))
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, summary)
}

func requestID(ctx *fasthttp.RequestCtx, fromBody string) string {
	if key := httpcontext.IdempotencyKeyHeader(ctx); key != "" {
		return key
	}
	return fromBody
}

func saleID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("id").(string)
	return id
}

func itemInputs(items []transport.SaleItemRequest) []saleUC.ItemInput {
	out := make([]saleUC.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, saleUC.ItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}

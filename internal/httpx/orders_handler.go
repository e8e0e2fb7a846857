package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core/internal/logging"
	"github.com/ariefcatur/go-order-core/internal/orders"
	"github.com/ariefcatur/go-order-core/internal/redisx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrderService interface {
	PlaceOrder(ctx context.Context, caller orders.Caller, items []orders.LineItem) (*orders.Receipt, error)
	GetOrder(ctx context.Context, caller orders.Caller, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, caller orders.Caller) ([]orders.Order, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	ChangeStatus(ctx context.Context, caller orders.Caller, orderID string, to orders.Status) (*orders.Order, error)
}

type Idempotency interface {
	Claim(ctx context.Context, userID, key string) (redisx.ClaimState, string, error)
	Complete(ctx context.Context, userID, key, orderID string) error
	Release(ctx context.Context, userID, key string) error
}

// OrderCache.Set must not replace a cached order with one whose UpdatedAt
// is earlier.
type OrderCache interface {
	Get(ctx context.Context, orderID string) (*orders.Order, bool, error)
	Set(ctx context.Context, o *orders.Order) error
	Invalidate(ctx context.Context, orderID string) error
}

type StockReader interface {
	Get(ctx context.Context, productID string) (orders.StockLevel, bool, error)
}

// OrdersHandler serves the order and catalog endpoints. Idem, Cache and
// Stock are optional.
type OrdersHandler struct {
	Service   OrderService
	Inventory orders.Inventory
	Idem      Idempotency
	Cache     OrderCache
	Stock     StockReader
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}/stock", h.productStock)

	r.Group(func(r chi.Router) {
		r.Use(RequireCaller)
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}/status", h.changeStatus)
	})
}

type createOrderReq struct {
	LineItems []orders.LineItem `json:"line_items"`
}

type createOrderResp struct {
	OrderID    string        `json:"order_id"`
	Total      string        `json:"total"`
	Status     orders.Status `json:"status"`
	Idempotent bool          `json:"idempotent,omitempty"`
}

type orderLineResp struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type orderResp struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Lines     []orderLineResp `json:"lines,omitempty"`
	Total     string          `json:"total"`
	Status    orders.Status   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toOrderResp(o *orders.Order) orderResp {
	out := orderResp{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total.StringFixed(2),
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, orderLineResp{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice.StringFixed(2)})
	}
	return out
}

type productResp struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

type stockResp struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Version   int64  `json:"version"`
	Source    string `json:"source"` // "view" | "store"
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	log := logging.FromContext(r.Context())

	var req createOrderReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key != "" && h.Idem != nil {
		state, orderID, err := h.Idem.Claim(r.Context(), caller.UserID, key)
		if err != nil {
			log.Error("idempotency_claim_failed", zap.Error(err))
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, string(orders.KindTransientConflict), "idempotency store unavailable")
			return
		}
		switch state {
		case redisx.InFlight:
			writeError(w, http.StatusConflict, "DUPLICATE_REQUEST", "a request with this Idempotency-Key is in progress")
			return
		case redisx.Done:
			o, err := h.Service.GetOrder(r.Context(), caller, orderID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, createOrderResp{OrderID: o.ID, Total: o.Total.StringFixed(2), Status: o.Status, Idempotent: true})
			return
		}
	} else {
		key = ""
	}

	receipt, err := h.Service.PlaceOrder(r.Context(), caller, req.LineItems)
	// the claim must settle even if the client has gone away
	bg := context.WithoutCancel(r.Context())
	if err != nil {
		if key != "" {
			if rerr := h.Idem.Release(bg, caller.UserID, key); rerr != nil {
				log.Warn("idempotency_release_failed", zap.Error(rerr))
			}
		}
		writeDomainError(w, err)
		return
	}
	if key != "" {
		if cerr := h.Idem.Complete(bg, caller.UserID, key, receipt.Order.ID); cerr != nil {
			log.Warn("idempotency_complete_failed", zap.String("order_id", receipt.Order.ID), zap.Error(cerr))
		}
	}
	if h.Cache != nil {
		if cerr := h.Cache.Set(bg, receipt.Order); cerr != nil {
			log.Warn("order_cache_set_failed", zap.Error(cerr))
		}
	}

	writeJSON(w, http.StatusCreated, createOrderResp{
		OrderID: receipt.Order.ID,
		Total:   receipt.Order.Total.StringFixed(2),
		Status:  receipt.Order.Status,
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	list, err := h.Service.ListOrders(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]orderResp, 0, len(list))
	for i := range list {
		out = append(out, toOrderResp(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	orderID := chi.URLParam(r, "id")
	log := logging.FromContext(r.Context())

	// 1) cache
	if h.Cache != nil {
		o, ok, err := h.Cache.Get(r.Context(), orderID)
		if err != nil {
			log.Warn("order_cache_get_failed", zap.String("order_id", orderID), zap.Error(err))
		}
		if ok {
			if !caller.IsAdmin && o.UserID != caller.UserID {
				writeDomainError(w, orders.ErrOrderNotFound)
				return
			}
			writeJSON(w, http.StatusOK, toOrderResp(o))
			return
		}
	}

	// 2) store
	o, err := h.Service.GetOrder(r.Context(), caller, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Set(r.Context(), o); err != nil {
			log.Warn("order_cache_set_failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

type changeStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) changeStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	var req changeStatusReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}

	o, err := h.Service.ChangeStatus(r.Context(), caller, orderID, orders.Status(strings.ToUpper(string(req.Status))))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if h.Cache != nil {
		// Write the new status through so a slower reader holding the old
		// copy cannot put it back.
		bg := context.WithoutCancel(r.Context())
		log := logging.FromContext(r.Context())
		if err := h.Cache.Set(bg, o); err != nil {
			log.Warn("order_cache_set_failed", zap.String("order_id", orderID), zap.Error(err))
			if err := h.Cache.Invalidate(bg, orderID); err != nil {
				log.Warn("order_cache_invalidate_failed", zap.String("order_id", orderID), zap.Error(err))
			}
		}
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Service.ListProducts(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, productResp{ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), Stock: p.Stock})
	}
	writeJSON(w, http.StatusOK, out)
}

// productStock answers from the stock view and falls back to the store when
// the view has no entry or is unreachable.
func (h *OrdersHandler) productStock(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "id")
	if h.Stock != nil {
		lvl, ok, err := h.Stock.Get(r.Context(), pid)
		if err != nil {
			logging.FromContext(r.Context()).Warn("stock_view_get_failed", zap.String("product_id", pid), zap.Error(err))
		}
		if ok {
			writeJSON(w, http.StatusOK, stockResp{ProductID: pid, Stock: lvl.Quantity, Version: lvl.Version, Source: "view"})
			return
		}
	}

	p, err := h.Inventory.GetStock(r.Context(), pid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResp{ProductID: p.ID, Stock: p.Stock, Version: p.Version, Source: "store"})
}

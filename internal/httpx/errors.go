package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-order-core/internal/orders"
)

type errorResponse struct {
	Kind      string `json:"error_kind"`
	Detail    string `json:"detail"`
	ProductID string `json:"product_id,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, errorResponse{Kind: kind, Detail: detail})
}

// writeDomainError maps an orders error onto a status code and body.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
		return
	case errors.Is(err, orders.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
		return
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
		return
	}

	kind := orders.KindOf(err)
	body := errorResponse{Kind: string(kind), Detail: err.Error()}
	var rej *orders.RejectionError
	if errors.As(err, &rej) {
		body.ProductID = rej.ProductID
		switch rej.Kind {
		case orders.KindInsufficientStock:
			body.Requested = &rej.Requested
			body.Available = &rej.Available
		case orders.KindInvalidQuantity:
			body.Requested = &rej.Requested
		}
	}

	code := http.StatusInternalServerError
	switch kind {
	case orders.KindEmptyCart, orders.KindInvalidQuantity:
		code = http.StatusBadRequest
	case orders.KindUnknownProduct:
		code = http.StatusNotFound
	case orders.KindInsufficientStock:
		code = http.StatusConflict
	case orders.KindTransientConflict:
		code = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
		body.Detail = "conflicting updates, retry later"
	case orders.KindStorageFailure:
		body.Detail = "storage failure"
	}
	writeJSON(w, code, body)
}

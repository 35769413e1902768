package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	widgetAuth "github.com/MrEthical07/widgetAuth"
)

type errorBody struct {
	Error string `json:"error"`
	Layer string `json:"layer,omitempty"`
}

// StatusFor maps a rejection reason code to an HTTP status.
func StatusFor(reason string) int {
	switch reason {
	case widgetAuth.ReasonRateLimited:
		return http.StatusTooManyRequests
	case widgetAuth.ReasonInvalidCredential, widgetAuth.ReasonInvalidToken, widgetAuth.ReasonSessionInvalid:
		return http.StatusUnauthorized
	case widgetAuth.ReasonOriginNotAllowed, widgetAuth.ReasonPartnerInactive:
		return http.StatusForbidden
	case widgetAuth.ReasonInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// WriteRejection writes err as a JSON error response. Rate-limit rejections
// carry a Retry-After header in whole seconds.
func WriteRejection(w http.ResponseWriter, err error) {
	rej := widgetAuth.AsRejection(err)
	if rej == nil {
		rej = widgetAuth.AsRejection(widgetAuth.ErrUnavailable)
	}

	if rej.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rej.RetryAfter.Seconds())))
	}
	WriteJSON(w, StatusFor(rej.Reason), errorBody{Error: rej.Reason, Layer: rej.Layer})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

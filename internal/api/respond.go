package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/SigNoz/storefront-go-app/internal/middleware"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var statusByCode = map[string]int{
	"not_found":            http.StatusNotFound,
	"validation":           http.StatusBadRequest,
	"out_of_stock":         http.StatusBadRequest,
	"insufficient_stock":   http.StatusBadRequest,
	"empty_cart":           http.StatusBadRequest,
	"coupon_invalid":       http.StatusBadRequest,
	"coupon_below_minimum": http.StatusBadRequest,
	"unauthenticated":      http.StatusUnauthorized,
	"unauthorized":         http.StatusForbidden,
	"dependency":           http.StatusServiceUnavailable,
}

// respondError maps a service error onto a status and a {error, code} body.
// Internal failures never leak their message.
func (a *App) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := services.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("code", code),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
	}

	if services.IsBusiness(err) {
		a.logger.Debug("request rejected", fields...)
		writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
		return
	}

	a.logger.Error("request failed", fields...)
	msg := "Internal Server Error"
	if status == http.StatusServiceUnavailable {
		msg = "Service temporarily unavailable"
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func identity(r *http.Request) middleware.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}

func claimsUser(c *middleware.Claims) models.User {
	return models.User{ID: c.Subject, Email: c.Email, Name: c.Name, Role: c.Role}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// Package response writes JSON and problem responses for the handlers.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
)

// JSON encodes data with status. A nil data writes headers only.
func JSON(w http.ResponseWriter, _ *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// NoContent writes a bare 204.
func NoContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// TraceID is the request ID problems are tagged with.
func TraceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// Error writes p with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Instance = r.URL.Path
	p.Write(w)
}

// Problem writes a problem of kind for this request.
func Problem(w http.ResponseWriter, r *http.Request, kind models.Kind, detail string) {
	Error(w, r, kind.New(TraceID(r), detail))
}

// BadRequest writes a 400 listing the invalid fields, if any.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(TraceID(r), detail, errors))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindNotFound, detail)
}

// InternalError writes a 500. detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindInternal, detail)
}

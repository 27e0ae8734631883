package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
// Code carries the stable machine-readable reason clients switch on.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	Code     string       `json:"code,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://saferoute.dev/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation         = problemBase + "validation-error"
	ProblemTypeInvalidTime        = problemBase + "invalid-time"
	ProblemTypeOutOfBounds        = problemBase + "out-of-bounds"
	ProblemTypeUnauthorized       = problemBase + "unauthorized"
	ProblemTypeForbidden          = problemBase + "forbidden"
	ProblemTypeNotFound           = problemBase + "not-found"
	ProblemTypeNoPath             = problemBase + "no-path"
	ProblemTypeTooManyRequests    = problemBase + "too-many-requests"
	ProblemTypeUnsupportedMedia   = problemBase + "unsupported-media-type"
	ProblemTypeInternal           = problemBase + "internal-error"
	ProblemTypeRoutingUnavailable = problemBase + "routing-unavailable"
	ProblemTypeGraphUnavailable   = problemBase + "graph-unavailable"
	ProblemTypeUnavailable        = problemBase + "service-unavailable"
)

// Error codes carried in Problem.Code.
const (
	CodeValidation         = "INVALID_REQUEST"
	CodeInvalidTime        = "INVALID_TIME"
	CodeOutOfBounds        = "OUT_OF_BOUNDS"
	CodeNoPath             = "NO_PATH"
	CodeRoutingUnavailable = "ROUTING_UNAVAILABLE"
	CodeGraphUnavailable   = "GRAPH_UNAVAILABLE"
)

// Kind is a problem template: everything but the per-request detail.
type Kind struct {
	Type   string
	Title  string
	Status int
	Code   string
}

// The problem kinds the API can answer with.
var (
	KindValidation         = Kind{ProblemTypeValidation, "Validation error", http.StatusBadRequest, CodeValidation}
	KindInvalidTime        = Kind{ProblemTypeInvalidTime, "Invalid time", http.StatusBadRequest, CodeInvalidTime}
	KindOutOfBounds        = Kind{ProblemTypeOutOfBounds, "Location out of bounds", http.StatusBadRequest, CodeOutOfBounds}
	KindUnauthorized       = Kind{ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, ""}
	KindForbidden          = Kind{ProblemTypeForbidden, "Forbidden", http.StatusForbidden, ""}
	KindNotFound           = Kind{ProblemTypeNotFound, "Not found", http.StatusNotFound, ""}
	KindNoPath             = Kind{ProblemTypeNoPath, "No path", http.StatusNotFound, CodeNoPath}
	KindUnsupportedMedia   = Kind{ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType, CodeValidation}
	KindTooManyRequests    = Kind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, ""}
	KindInternal           = Kind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, ""}
	KindRoutingUnavailable = Kind{ProblemTypeRoutingUnavailable, "Routing unavailable", http.StatusBadGateway, CodeRoutingUnavailable}
	KindGraphUnavailable   = Kind{ProblemTypeGraphUnavailable, "Graph unavailable", http.StatusServiceUnavailable, CodeGraphUnavailable}
	KindUnavailable        = Kind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, ""}
)

// New fills the template in for one request.
func (k Kind) New(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.Type,
		Title:   k.Title,
		Status:  k.Status,
		Code:    k.Code,
		Detail:  detail,
		TraceID: traceID,
	}
}

// NewBadRequest is a validation problem listing the offending fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := KindValidation.New(traceID, detail)
	p.Errors = errors
	return p
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	h.Set("Cache-Control", "no-store")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Error makes a Problem usable as an error value in logs.
func (p *Problem) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tally/internal/core"
	"tally/internal/services"
)

// JSONResponse is a small builder for API responses.
type JSONResponse struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponse {
	return &JSONResponse{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

// ETag sets a strong validator. tag is quoted if it is not already.
func (b *JSONResponse) ETag(tag string) *JSONResponse {
	if tag == "" {
		return b
	}
	if !strings.HasPrefix(tag, `"`) && !strings.HasPrefix(tag, `W/"`) {
		tag = `"` + tag + `"`
	}
	return b.Header("ETag", tag)
}

func (b *JSONResponse) Body(v any) *JSONResponse {
	b.body = v
	return b
}

// Write sends the response. A request whose If-None-Match matches the ETag
// gets 304 with no body.
func (b *JSONResponse) Write(w http.ResponseWriter, r *http.Request) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if etag := b.headers["ETag"]; etag != "" && r != nil && etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		c := strings.TrimSpace(candidate)
		if c == "*" || c == etag {
			return true
		}
	}
	return false
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	NewJSONResponse().Status(status).Body(ErrorBody{Error: msg}).Write(w, nil)
}

// errorResponse maps a service error to a status code and body.
func errorResponse(err error) (int, ErrorBody) {
	var ve *core.ValidationError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ErrorBody{Error: ve.Err.Error(), Field: ve.Field}
	case errors.Is(err, services.ErrTransactionNotFound):
		return http.StatusNotFound, ErrorBody{Error: services.ErrTransactionNotFound.Error()}
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, ErrorBody{Error: "request body too large"}
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, ErrorBody{Error: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: "internal error"}
	}
}

// Package apierr is the JSON error envelope written by the HTTP surface:
// an Error(w, body, code) helper like http.Error, with a body carrying
// {error, message, status} fields.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Response is the body written for any non-2xx API response.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Write sends r as a JSON body with status code httpCode. Like http.Error,
// the caller must still return from its handler after calling this.
func Write(w http.ResponseWriter, r *Response, httpCode int) {
	r.Status = httpCode
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpCode)
	b, _ := json.Marshal(r)
	w.Write(b)
}

// BadRequest writes a 400 with the given error slug and message.
func BadRequest(w http.ResponseWriter, slug, message string) {
	Write(w, &Response{Error: slug, Message: message}, http.StatusBadRequest)
}

// NotFound writes a 404 with the given error slug and message.
func NotFound(w http.ResponseWriter, slug, message string) {
	Write(w, &Response{Error: slug, Message: message}, http.StatusNotFound)
}

// Internal writes a 500 with the given error slug and message.
func Internal(w http.ResponseWriter, slug, message string) {
	Write(w, &Response{Error: slug, Message: message}, http.StatusInternalServerError)
}

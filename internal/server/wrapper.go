// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/keepsakelab/giftbox/internal/keepsake"
)

// maxBodyBytes bounds request bodies. Photo uploads are data URLs or
// multipart parts, so this has to fit a handful of compressed images.
const maxBodyBytes = 64 << 20

// Wrap adapts a typed handler to an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error).
// Path parameters can be extracted by tagging struct fields with
// `path:"name"`, query parameters with `query:"name"`.
func Wrap[In, Out any](fn func(context.Context, *In) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)

		output, err := fn(ctx, input)
		writeJSONResponse(ctx, w, output, err)
	})
}

// readAndDecodeBody reads the request body with a size limit and decodes
// JSON into input. Returns false if an error occurred and was written to
// the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeValidationFailed, "Request body too large")
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "Failed to read request body")
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			slog.ErrorContext(ctx, "Failed to decode request body", "err", err)
			writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "Invalid request body")
			return false
		}
	}
	return true
}

// writeJSONResponse writes a JSON response or error response.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		code := ErrorCodeInternal

		var apiErr *apiError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.status
			code = apiErr.code
		case errors.Is(err, keepsake.ErrNotFound):
			status = http.StatusNotFound
			code = ErrorCodeNotFound
		}

		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", status)
		writeError(w, status, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// populatePathParams extracts path parameters from the request and
// populates struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	eachTaggedField(input, "path", func(tag string, field reflect.Value) {
		if v := r.PathValue(tag); v != "" {
			field.SetString(v)
		}
	})
}

// populateQueryParams extracts query parameters from the request and
// populates struct fields tagged with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	query := r.URL.Query()
	eachTaggedField(input, "query", func(tag string, field reflect.Value) {
		if v := query.Get(tag); v != "" {
			field.SetString(v)
		}
	})
}

// eachTaggedField visits the settable string fields of *struct input
// that carry the given tag. All request parameters here are strings, so
// no other kinds are handled.
func eachTaggedField(input any, tagName string, fn func(tag string, field reflect.Value)) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get(tagName)
		if tag == "" || field.Type.Kind() != reflect.String {
			continue
		}
		fn(tag, elem.Field(i))
	}
}

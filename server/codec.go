package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/hupe1980/agentcore/auth"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/tool"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"

	// StatusClientClosedRequest reports invocations that ended because the
	// caller went away or the invocation was cancelled.
	StatusClientClosedRequest = 499
)

// errUnsupportedMediaType is returned for bodies that are neither JSON nor CBOR.
var errUnsupportedMediaType = errors.New("unsupported media type")

// cborDecMode decodes untyped maps with string keys so they can be
// re-encoded as JSON.
var cborDecMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode()

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func isCBOR(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == contentTypeCBOR
}

func acceptsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isCBOR(strings.TrimSpace(part)) {
			return true
		}
	}
	return false
}

// decodeBody decodes a JSON or CBOR request body into target.
func decodeBody(r *http.Request, target any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	ct := r.Header.Get("Content-Type")

	switch {
	case isCBOR(ct):
		if err := cborDecMode.Unmarshal(data, target); err != nil {
			return fmt.Errorf("decode cbor body: %w", err)
		}
	case ct == "" || strings.HasPrefix(ct, contentTypeJSON):
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("decode json body: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", errUnsupportedMediaType, ct)
	}

	return nil
}

// writeResponse encodes data as CBOR when the client accepts it and as JSON
// otherwise.
func writeResponse(w http.ResponseWriter, r *http.Request, status int, data any) {
	if acceptsCBOR(r) {
		body, err := cbor.Marshal(data)
		if err == nil {
			w.Header().Set("Content-Type", contentTypeCBOR)
			w.WriteHeader(status)
			_, _ = w.Write(body)
			return
		}
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeResponse(w, r, status, ErrorResponse{Error: msg})
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var toolErr *tool.ToolError

	switch {
	case errors.Is(err, core.ErrAgentNotFound), errors.Is(err, core.ErrToolNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidUser), errors.Is(err, core.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.As(err, &toolErr) && toolErr.Code == tool.CodeValidation:
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNameNotAllowed), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusForbidden
	case errors.Is(err, core.ErrCancelled), errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, core.ErrNotImplemented):
		return http.StatusServiceUnavailable
	case errors.Is(err, errUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

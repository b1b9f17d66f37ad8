package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"sales/internal/core"
	"sales/internal/ledger"
	"sales/internal/log"
)

// OperatorHeader carries the id of the operator making a request.
const OperatorHeader = "X-Operator-ID"

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrStaleSession):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidGranularity),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidOperator),
		errors.Is(err, core.ErrEmptySaleKey),
		errors.Is(err, core.ErrVariantRequired),
		errors.Is(err, core.ErrUnknownVariant),
		errors.Is(err, core.ErrUnresolvedKey):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStoreNotReady),
		errors.Is(err, core.ErrPersistenceFailure),
		errors.Is(err, ledger.ErrExportUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the mapped status. Server-side failures are logged
// and their detail is kept out of the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger := log.NewStructuredLogger(log.FromContext(r.Context()))
		logger.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, operation, log.NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")))
		if errors.Is(err, core.ErrCorruptPeriodFile) {
			msg = "period file is corrupt"
		} else if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// operatorFromHeader returns the caller's id from OperatorHeader.
func operatorFromHeader(r *http.Request) (core.OperatorID, error) {
	v := strings.TrimSpace(r.Header.Get(OperatorHeader))
	if v == "" {
		return 0, fmt.Errorf("missing %s header: %w", OperatorHeader, core.ErrStaleSession)
	}
	return core.ParseOperatorID(v)
}

// operatorQuery parses the optional ?operator= filter.
func operatorQuery(r *http.Request) (*core.OperatorID, error) {
	v := strings.TrimSpace(r.URL.Query().Get("operator"))
	if v == "" {
		return nil, nil
	}
	id, err := core.ParseOperatorID(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// periodParams resolves {granularity} and {label} route parameters.
func (s *Server) periodParams(r *http.Request) (core.Granularity, string, error) {
	g, err := core.ParseGranularity(chi.URLParam(r, "granularity"))
	if err != nil {
		return "", "", err
	}
	label, err := s.ledger.ResolveLabel(g, chi.URLParam(r, "label"))
	if err != nil {
		return "", "", err
	}
	return g, label, nil
}

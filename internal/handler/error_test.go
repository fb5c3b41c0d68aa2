package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, JSONError) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/requests", nil)

	ErrorResponse(rec, req, discardLogger(), err)

	var body JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestErrorResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", domain.Invalid("op", "bad"), http.StatusBadRequest, domain.EINVALID},
		{"unauthorized", domain.Unauthorized("op", "who"), http.StatusUnauthorized, domain.EUNAUTHORIZED},
		{"forbidden", domain.Forbidden("op", "no"), http.StatusForbidden, domain.EFORBIDDEN},
		{"not found", domain.NotFound("op", "request", "x"), http.StatusNotFound, domain.ENOTFOUND},
		{"conflict", domain.Conflict("op", "busy"), http.StatusConflict, domain.ECONFLICT},
		{"state", &domain.StateTransitionError{Current: domain.RequestStatusCancelled, Target: domain.RequestStatusArrived}, http.StatusConflict, domain.ESTATE},
		{"stale write", &domain.VersionConflictError{RequestID: "r", Expected: 2, Current: 3}, http.StatusConflict, domain.ECONFLICT},
		{"lost race", &domain.ConcurrentAssignmentConflict{RequestID: "r"}, http.StatusGone, domain.EGONE},
		{"guarantee", &domain.PriceGuaranteeViolation{Quoted: 100, Charged: 200}, http.StatusUnprocessableEntity, domain.EREVIEW},
		{"searching", &domain.NoEligibleCandidatesError{RequestID: "r"}, http.StatusAccepted, domain.ESEARCHING},
		{"rate limit", domain.Errorf(domain.ERATELIMIT, "", "slow down"), http.StatusTooManyRequests, domain.ERATELIMIT},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, domain.EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serveError(t, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestErrorResponse_StateTransitionCarriesCurrentStatus(t *testing.T) {
	err := &domain.StateTransitionError{RequestID: "r", Current: domain.RequestStatusCancelled, Target: domain.RequestStatusArrived}

	_, body := serveError(t, err)

	assert.Equal(t, domain.RequestStatusCancelled, body.Error.CurrentStatus)
}

func TestErrorResponse_InternalHidesDetails(t *testing.T) {
	err := domain.Internal(errors.New("pq: connection refused to 10.0.0.5"), "repository.get_request", "failed")

	_, body := serveError(t, err)

	assert.NotContains(t, body.Error.Message, "10.0.0.5")
	assert.NotContains(t, body.Error.Message, "repository")
}

func TestValidationErrorResponse_FieldsWithoutOperation(t *testing.T) {
	ve := domain.NewValidationError("dispatch.submit", "title", "is required")
	ve.Add("address", "is required")

	rec, body := serveError(t, ve)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation failed", body.Error.Message)
	assert.Equal(t, map[string]string{"title": "is required", "address": "is required"}, body.Error.Fields)
	assert.NotContains(t, rec.Body.String(), "dispatch.submit")
}

func TestConvenienceResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request, *slog.Logger)
		status int
	}{
		{"not found", NotFoundResponse, http.StatusNotFound},
		{"unauthorized", UnauthorizedResponse, http.StatusUnauthorized},
		{"forbidden", ForbiddenResponse, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil), discardLogger())
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

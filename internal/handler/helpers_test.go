package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vinpix/internal/domain"
)

func TestHandleErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", fmt.Errorf("%w: bad input", domain.ErrValidation), http.StatusBadRequest},
		{"not found", fmt.Errorf("node x: %w", domain.ErrNotFound), http.StatusNotFound},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"turn in flight", fmt.Errorf("session s1: %w", domain.ErrTurnInFlight), http.StatusConflict},
		{"backend", fmt.Errorf("%w: provider down", domain.ErrBackend), http.StatusBadGateway},
		{"integrity", fmt.Errorf("%w: dangling parent", domain.ErrIntegrity), http.StatusInternalServerError},
		{"unknown", fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(rec, tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleErrorHidesIntegrityDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	handleError(rec, fmt.Errorf("%w: node a lists missing child b", domain.ErrIntegrity))
	if strings.Contains(rec.Body.String(), "missing child") {
		t.Errorf("integrity details leaked to the client: %s", rec.Body.String())
	}
}

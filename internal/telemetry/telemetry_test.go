package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracing_PassesStatusThrough(t *testing.T) {
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRoundHelpers_WithNoopProviders(t *testing.T) {
	ctx, span := StartRound(context.Background(), "conv-1")
	ToolCalled(ctx, "get_accounts", nil)
	ProposalDecided(ctx, "transaction", "confirmed")

	assert.NotPanics(t, func() {
		EndRound(ctx, span, time.Now(), errors.New("upstream"))
	})
}

package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clinicflow/booking-assistant/internal/scheduling"
)

func TestHealthChecker_DegradedWhenBookingFallsBack(t *testing.T) {
	store := NewMemoryStore(time.Hour, 0, nil)
	t.Cleanup(func() { _ = store.Close() })
	selector := scheduling.NewSelector(context.Background(), scheduling.ClinikoConfig{}, nil)

	report := NewHealthChecker(store, &stubLLM{name: "openai"}, selector).Check(context.Background())

	assert.Equal(t, HealthDegraded, report.State)
	assert.Equal(t, "up", report.Services["session_store"])
	assert.Equal(t, "up", report.Services["llm"])
	assert.Equal(t, "fallback", report.Services["booking"])
	assert.NotEmpty(t, report.Reason)
	assert.False(t, report.CheckedAt.IsZero())
}

func TestHealthChecker_CriticalWithoutLLM(t *testing.T) {
	store := NewMemoryStore(time.Hour, 0, nil)
	t.Cleanup(func() { _ = store.Close() })
	selector := scheduling.NewSelector(context.Background(), scheduling.ClinikoConfig{}, nil)

	report := NewHealthChecker(store, nil, selector).Check(context.Background())

	assert.Equal(t, HealthCritical, report.State)
	assert.Equal(t, "unconfigured", report.Services["llm"])
}

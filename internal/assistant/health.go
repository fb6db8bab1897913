package assistant

import (
	"context"
	"time"

	"github.com/clinicflow/booking-assistant/internal/scheduling"
)

// HealthState is the aggregate view of the services a conversation needs.
type HealthState string

const (
	// HealthHealthy means every dependency is up.
	HealthHealthy HealthState = "healthy"
	// HealthDegraded means the booking fallback is active but conversation
	// continues.
	HealthDegraded HealthState = "degraded"
	// HealthCritical means too few services remain to hold a conversation.
	HealthCritical HealthState = "critical"
)

// HealthReport breaks the aggregate down per dependency.
type HealthReport struct {
	State     HealthState       `json:"state"`
	Services  map[string]string `json:"services"`
	Reason    string            `json:"reason,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// HealthChecker probes the session store, the LLM client, and the booking
// selector.
type HealthChecker struct {
	store    SessionStore
	llm      LLMClient
	selector *scheduling.Selector
	now      func() time.Time
}

func NewHealthChecker(store SessionStore, llm LLMClient, selector *scheduling.Selector) *HealthChecker {
	return &HealthChecker{store: store, llm: llm, selector: selector, now: time.Now}
}

// Check aggregates dependency states. The store and LLM are load-bearing:
// without either the assistant cannot hold a conversation, so their loss is
// critical. Booking falls back to the mock adapter, which only degrades.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		State:     HealthHealthy,
		Services:  make(map[string]string),
		CheckedAt: h.now(),
	}

	if err := h.store.Ping(ctx); err != nil {
		report.Services["session_store"] = "down"
		report.State = HealthCritical
		report.Reason = "session store unreachable"
	} else {
		report.Services["session_store"] = "up"
	}

	if h.llm == nil {
		report.Services["llm"] = "unconfigured"
		report.State = HealthCritical
		if report.Reason == "" {
			report.Reason = "no LLM client configured"
		}
	} else {
		report.Services["llm"] = "up"
	}

	switch h.selector.Mode() {
	case scheduling.ModeDegraded:
		report.Services["booking"] = "fallback"
		if report.State == HealthHealthy {
			report.State = HealthDegraded
			report.Reason = h.selector.Reason()
		}
	default:
		report.Services["booking"] = "up"
	}
	return report
}

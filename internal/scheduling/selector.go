package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicflow/booking-assistant/pkg/logging"
)

// Mode is the selector's steady state.
type Mode string

const (
	// ModeLive routes operations to the real backend.
	ModeLive Mode = "live"
	// ModeDegraded routes operations to the mock backend.
	ModeDegraded Mode = "degraded"
)

const defaultProbeTimeout = 5 * time.Second

var fallbackActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "assistant",
	Subsystem: "scheduling",
	Name:      "fallback_active",
	Help:      "1 when the mock scheduling backend is in use",
})

func init() {
	prometheus.MustRegister(fallbackActive)
}

// Selector decides whether conversations run against the real scheduling
// backend or the mock one. The decision is made once at construction (with a
// connectivity probe) and can be re-evaluated when an adapter failure looks
// like an outage.
type Selector struct {
	mu     sync.RWMutex
	mode   Mode
	reason string

	live         Adapter
	mock         *MockAdapter
	probeTimeout time.Duration
	logger       *logging.Logger
}

// SelectorOption configures the selector.
type SelectorOption func(*Selector)

// WithProbeTimeout overrides the connectivity-probe ceiling.
func WithProbeTimeout(d time.Duration) SelectorOption {
	return func(s *Selector) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// NewSelector builds the adapter policy. Credential problems are caught
// structurally before any network call; a failed or timed-out probe also
// lands in degraded mode. The mock adapter is always available so the
// conversation continues either way.
func NewSelector(ctx context.Context, cfg ClinikoConfig, logger *logging.Logger, opts ...SelectorOption) *Selector {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Selector{
		mode:         ModeLive,
		mock:         NewMockAdapter(),
		probeTimeout: defaultProbeTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	live, err := NewClinikoAdapter(cfg)
	if err != nil {
		s.degrade("booking system not configured: " + err.Error())
		return s
	}
	s.live = live

	if err := s.probe(ctx, live); err != nil {
		s.degrade("booking system unreachable: " + err.Error())
		return s
	}

	fallbackActive.Set(0)
	logger.Info("scheduling backend online", "backend", live.Name())
	return s
}

// probe races the adapter's Ping against an explicit timeout rather than
// relying on the HTTP client default.
func (s *Selector) probe(ctx context.Context, a Adapter) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Ping(probeCtx) }()

	select {
	case err := <-done:
		return err
	case <-probeCtx.Done():
		return probeCtx.Err()
	}
}

func (s *Selector) degrade(reason string) {
	s.mu.Lock()
	s.mode = ModeDegraded
	s.reason = reason
	s.mu.Unlock()
	fallbackActive.Set(1)
	s.logger.Warn("scheduling fallback activated", "reason", reason)
}

// Adapter returns the adapter conversations should use right now.
func (s *Selector) Adapter() Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == ModeDegraded || s.live == nil {
		return s.mock
	}
	return s.live
}

// Mode reports the current steady state.
func (s *Selector) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Reason returns the human-readable explanation for degraded mode, or "".
func (s *Selector) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// NoteFailure re-evaluates the policy after an adapter error. Connectivity
// and credential failures flip live -> degraded; not-found and validation
// errors do not, they are ordinary outcomes.
func (s *Selector) NoteFailure(err error) {
	if err == nil {
		return
	}
	switch ErrorKindOf(err) {
	case ErrKindUnreachable:
		if s.Mode() == ModeLive {
			s.degrade("booking system unavailable, using fallback")
		}
	case ErrKindCredentials:
		if s.Mode() == ModeLive {
			s.degrade("booking system rejected credentials, using fallback")
		}
	}
}

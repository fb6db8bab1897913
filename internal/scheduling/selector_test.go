package scheduling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_MissingCredentialsDegrades(t *testing.T) {
	s := NewSelector(context.Background(), ClinikoConfig{}, nil)

	assert.Equal(t, ModeDegraded, s.Mode())
	assert.NotEmpty(t, s.Reason())
	assert.Equal(t, "mock", s.Adapter().Name())

	// Degraded mode still serves well-formed availability.
	result, err := s.Adapter().CheckAvailability(context.Background(), AvailabilityQuery{
		ServiceID: "svc-standard",
		Date:      "2026-09-07",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Slots)
}

func TestSelector_ProbeFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSelector(context.Background(), ClinikoConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		BusinessID: "biz-1",
	}, nil, WithProbeTimeout(2*time.Second))

	assert.Equal(t, ModeDegraded, s.Mode())
	assert.Equal(t, "mock", s.Adapter().Name())
}

func TestSelector_ProbeTimeoutDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	s := NewSelector(context.Background(), ClinikoConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		BusinessID: "biz-1",
	}, nil, WithProbeTimeout(50*time.Millisecond))

	assert.Equal(t, ModeDegraded, s.Mode())
}

func TestSelector_HealthyProbeStaysLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"businesses":[]}`))
	}))
	defer srv.Close()

	s := NewSelector(context.Background(), ClinikoConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		BusinessID: "biz-1",
	}, nil)

	assert.Equal(t, ModeLive, s.Mode())
	assert.Equal(t, "cliniko", s.Adapter().Name())
}

func TestSelector_NoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"businesses":[]}`))
	}))
	defer srv.Close()

	newLive := func(t *testing.T) *Selector {
		s := NewSelector(context.Background(), ClinikoConfig{
			BaseURL:    srv.URL,
			APIKey:     "test-key",
			BusinessID: "biz-1",
		}, nil)
		require.Equal(t, ModeLive, s.Mode())
		return s
	}

	t.Run("unreachable flips to degraded", func(t *testing.T) {
		s := newLive(t)
		s.NoteFailure(NewAdapterError(ErrKindUnreachable, "ping", "connection refused", nil))
		assert.Equal(t, ModeDegraded, s.Mode())
	})

	t.Run("credentials flips to degraded", func(t *testing.T) {
		s := newLive(t)
		s.NoteFailure(NewAdapterError(ErrKindCredentials, "list_services", "401", nil))
		assert.Equal(t, ModeDegraded, s.Mode())
	})

	t.Run("not found stays live", func(t *testing.T) {
		s := newLive(t)
		s.NoteFailure(NewAdapterError(ErrKindNotFound, "cancel_appointment", "unknown id", nil))
		assert.Equal(t, ModeLive, s.Mode())
	})

	t.Run("nil error is ignored", func(t *testing.T) {
		s := newLive(t)
		s.NoteFailure(nil)
		assert.Equal(t, ModeLive, s.Mode())
	})
}

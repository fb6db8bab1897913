package assistant

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessNow = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

func TestSession_AllowList(t *testing.T) {
	sess := NewSession("s1", sessNow)

	assert.False(t, sess.IsAppointmentAllowed("appt-1"))

	sess.AllowAppointmentIDs("appt-1", "", "appt-2", "appt-1")
	assert.Equal(t, []string{"appt-1", "appt-2"}, sess.AllowedAppointmentIDs)
	assert.True(t, sess.IsAppointmentAllowed("appt-1"))
	assert.False(t, sess.IsAppointmentAllowed("appt-3"))
}

func TestSession_OperationLifecycle(t *testing.T) {
	sess := NewSession("s1", sessNow)

	sess.RecordOperation(OpCancel, StatusPending, sessNow)
	assert.False(t, sess.OperationSucceeded(OpCancel))

	sess.RecordOperation(OpCancel, StatusSuccess, sessNow.Add(time.Second))
	assert.True(t, sess.OperationSucceeded(OpCancel))
	assert.False(t, sess.OperationSucceeded(OpBooking))

	sess.RecordOperation(OpCancel, StatusFailed, sessNow.Add(2*time.Second))
	assert.False(t, sess.OperationSucceeded(OpCancel))
}

func TestSession_LatestOfferFreshness(t *testing.T) {
	sess := NewSession("s1", sessNow)
	sess.RecordOffer(Offer{
		Kind:  OfferAvailability,
		At:    sessNow,
		Slots: []OfferSlot{{Date: "2026-09-03", Time: "09:00"}},
	})

	got := sess.LatestOffer(OfferAvailability, sessNow.Add(9*time.Minute))
	require.NotNil(t, got)
	assert.Equal(t, "2026-09-03", got.Slots[0].Date)

	// Past the freshness window the offer is no longer resolvable.
	assert.Nil(t, sess.LatestOffer(OfferAvailability, sessNow.Add(11*time.Minute)))
	assert.Nil(t, sess.LatestOffer(OfferAppointmentDetails, sessNow))
}

func TestSession_OfferHistoryCapped(t *testing.T) {
	sess := NewSession("s1", sessNow)
	for i := 0; i < maxOffers+3; i++ {
		sess.RecordOffer(Offer{
			Kind:  OfferAvailability,
			At:    sessNow.Add(time.Duration(i) * time.Second),
			Slots: []OfferSlot{{Date: fmt.Sprintf("2026-09-%02d", i+1), Time: "09:00"}},
		})
	}

	assert.Len(t, sess.Offers, maxOffers)
	latest := sess.LatestOffer(OfferAvailability, sessNow.Add(time.Minute))
	require.NotNil(t, latest)
	assert.Equal(t, "2026-09-08", latest.Slots[0].Date)
}

func TestSession_CloneIsolation(t *testing.T) {
	sess := NewSession("s1", sessNow)
	sess.AppendMessage(RoleUser, "hello", sessNow)
	sess.AllowAppointmentIDs("appt-1")
	sess.RecordOperation(OpBooking, StatusSuccess, sessNow)
	sess.RecordOffer(Offer{
		Kind:        OfferAppointmentDetails,
		At:          sessNow,
		Appointment: &OfferAppointment{ID: "appt-1", Date: "2026-09-03", Time: "09:00"},
	})

	cp := sess.Clone()
	cp.AppendMessage(RoleUser, "second", sessNow.Add(time.Second))
	cp.AllowAppointmentIDs("appt-2")
	cp.RecordOperation(OpBooking, StatusFailed, sessNow.Add(time.Second))
	cp.Offers[0].Appointment.ID = "mutated"

	assert.Len(t, sess.Messages, 1)
	assert.Equal(t, []string{"appt-1"}, sess.AllowedAppointmentIDs)
	assert.True(t, sess.OperationSucceeded(OpBooking))
	assert.Equal(t, "appt-1", sess.Offers[0].Appointment.ID)
}

func TestSession_RecentMessages(t *testing.T) {
	sess := NewSession("s1", sessNow)
	for i := 0; i < 6; i++ {
		sess.AppendMessage(RoleUser, fmt.Sprintf("m%d", i), sessNow.Add(time.Duration(i)*time.Second))
	}

	recent := sess.RecentMessages(4)
	require.Len(t, recent, 4)
	assert.Equal(t, "m2", recent[0].Content)
	assert.Equal(t, "m5", recent[3].Content)

	assert.Len(t, sess.RecentMessages(0), 6)
	assert.Len(t, sess.RecentMessages(10), 6)
}

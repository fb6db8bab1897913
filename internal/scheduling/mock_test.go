package scheduling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapter_CheckAvailabilityDeterministic(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	q := AvailabilityQuery{ServiceID: "svc-standard", Date: "2026-09-07"}
	first, err := m.CheckAvailability(ctx, q)
	require.NoError(t, err)
	second, err := m.CheckAvailability(ctx, q)
	require.NoError(t, err)

	assert.NotEmpty(t, first.Slots)
	assert.Equal(t, first.Slots, second.Slots, "same query must return the same openings")

	for i := 1; i < len(first.Slots); i++ {
		assert.LessOrEqual(t, first.Slots[i-1].Time, first.Slots[i].Time)
	}
}

func TestMockAdapter_CheckAvailabilityRejectsBadDate(t *testing.T) {
	m := NewMockAdapter()
	_, err := m.CheckAvailability(context.Background(), AvailabilityQuery{ServiceID: "svc-standard", Date: "next week"})
	require.Error(t, err)
	assert.Equal(t, ErrKindInvalid, ErrorKindOf(err))
}

func TestMockAdapter_BookingLifecycle(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	appt, err := m.CreateAppointment(ctx, CreateAppointmentRequest{
		PatientID: "mock-patient-1",
		ServiceID: "svc-standard",
		Date:      "2026-09-07",
		Time:      "10:00",
	})
	require.NoError(t, err)
	require.NotEmpty(t, appt.ID)
	assert.Equal(t, "booked", appt.Status)
	assert.Equal(t, "Standard Consultation", appt.ServiceName)

	listed, err := m.ListPatientAppointments(ctx, "mock-patient-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, appt.ID, listed[0].ID)

	moved, err := m.Reschedule(ctx, RescheduleRequest{AppointmentID: appt.ID, NewDate: "2026-09-08", NewTime: "11:30"})
	require.NoError(t, err)
	assert.Equal(t, "2026-09-08", moved.Date)
	assert.Equal(t, "11:30", moved.Time)

	require.NoError(t, m.CancelAppointment(ctx, appt.ID, "patient_request"))
	listed, err = m.ListPatientAppointments(ctx, "mock-patient-1")
	require.NoError(t, err)
	assert.Empty(t, listed, "cancelled appointments are not upcoming")
}

func TestMockAdapter_CancelUnknownAppointment(t *testing.T) {
	m := NewMockAdapter()
	err := m.CancelAppointment(context.Background(), "appt-unknown", "patient_request")
	require.Error(t, err)
	assert.Equal(t, ErrKindNotFound, ErrorKindOf(err))
}

func TestMockAdapter_SearchPatient(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	tests := []struct {
		name    string
		query   PatientSearchQuery
		wantID  string
		wantErr bool
	}{
		{
			name:   "by date of birth",
			query:  PatientSearchQuery{FirstName: "Alex", LastName: "Morgan", DateOfBirth: "1985-03-14"},
			wantID: "mock-patient-1",
		},
		{
			name:   "by phone with formatting noise",
			query:  PatientSearchQuery{FirstName: "sam", LastName: "taylor", Phone: "0498 765 432"},
			wantID: "mock-patient-2",
		},
		{
			name:    "wrong date of birth",
			query:   PatientSearchQuery{FirstName: "Alex", LastName: "Morgan", DateOfBirth: "1990-01-01"},
			wantErr: true,
		},
		{
			name:    "unknown name",
			query:   PatientSearchQuery{FirstName: "Nobody", LastName: "Here", Phone: "0400000000"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := m.SearchPatient(ctx, tt.query)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrKindNotFound, ErrorKindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.ID)
		})
	}
}

package scheduling

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockAdapter simulates a scheduling backend with deterministic synthetic
// data so the conversation engine behaves identically in degraded mode.
// State (created/cancelled appointments) is kept in memory for the life of
// the process.
type MockAdapter struct {
	mu           sync.Mutex
	appointments map[string]*Appointment
	patients     map[string]*Patient
}

// NewMockAdapter returns a mock backend pre-seeded with a small patient
// roster so patient search succeeds for demo names.
func NewMockAdapter() *MockAdapter {
	m := &MockAdapter{
		appointments: make(map[string]*Appointment),
		patients:     make(map[string]*Patient),
	}
	for _, p := range []Patient{
		{ID: "mock-patient-1", FirstName: "Alex", LastName: "Morgan", Phone: "0412345678", DateOfBirth: "1985-03-14"},
		{ID: "mock-patient-2", FirstName: "Sam", LastName: "Taylor", Phone: "0498765432", DateOfBirth: "1992-11-02"},
	} {
		cp := p
		m.patients[p.ID] = &cp
	}
	return m
}

var _ Adapter = (*MockAdapter)(nil)

func (m *MockAdapter) Name() string { return "mock" }

// Ping always succeeds; the mock is the fallback of last resort.
func (m *MockAdapter) Ping(ctx context.Context) error { return nil }

var mockServices = []Service{
	{ID: "svc-standard", Name: "Standard Consultation", DurationMin: 30},
	{ID: "svc-initial", Name: "Initial Consultation", DurationMin: 45},
	{ID: "svc-followup", Name: "Follow-up Review", DurationMin: 15},
}

var mockPractitioners = []Practitioner{
	{ID: "prac-1", Name: "Dr. Ellis"},
	{ID: "prac-2", Name: "Dr. Okafor"},
}

func (m *MockAdapter) ListServices(ctx context.Context) ([]Service, error) {
	return append([]Service(nil), mockServices...), nil
}

func (m *MockAdapter) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	return append([]Practitioner(nil), mockPractitioners...), nil
}

// slotSeed derives a stable per-day fingerprint so the same query always
// produces the same openings.
func slotSeed(serviceID, date string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(serviceID))
	h.Write([]byte(date))
	return h.Sum32()
}

func (m *MockAdapter) slotsForDate(serviceID, practitionerID, date string) []Slot {
	seed := slotSeed(serviceID, date)
	prac := mockPractitioners[int(seed)%len(mockPractitioners)]
	if practitionerID != "" {
		for _, p := range mockPractitioners {
			if p.ID == practitionerID {
				prac = p
			}
		}
	}

	svcName := ""
	for _, s := range mockServices {
		if s.ID == serviceID {
			svcName = s.Name
		}
	}

	// Half-hour grid from 09:00 to 16:30, dropping a deterministic subset so
	// days look realistically patchy. Roughly a third of the grid is taken.
	var slots []Slot
	idx := 0
	for hour := 9; hour <= 16; hour++ {
		for _, min := range []int{0, 30} {
			idx++
			if (seed>>uint(idx%24))&0x3 == 0 {
				continue
			}
			hhmm := fmt.Sprintf("%02d:%02d", hour, min)
			slots = append(slots, Slot{
				Date:             date,
				Time:             hhmm,
				DisplayTime:      DisplayTime(hhmm),
				PractitionerID:   prac.ID,
				PractitionerName: prac.Name,
				ServiceID:        serviceID,
				ServiceName:      svcName,
			})
		}
	}
	return slots
}

func (m *MockAdapter) CheckAvailability(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	if q.Date == "" {
		return nil, NewAdapterError(ErrKindInvalid, "check_availability", "date is required", nil)
	}
	start, err := time.Parse("2006-01-02", q.Date)
	if err != nil {
		return nil, NewAdapterError(ErrKindInvalid, "check_availability", "date must be YYYY-MM-DD", err)
	}

	window := q.WindowDays
	if window <= 0 {
		window = 7
	}
	byDate := make(map[string][]Slot, window)
	for d := 0; d < window; d++ {
		date := start.AddDate(0, 0, d).Format("2006-01-02")
		byDate[date] = m.slotsForDate(q.ServiceID, q.PractitionerID, date)
	}
	return buildAvailabilityResult(q, byDate), nil
}

func (m *MockAdapter) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	if req.Date == "" || req.Time == "" {
		return nil, NewAdapterError(ErrKindInvalid, "create_appointment", "date and time are required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	appt := &Appointment{
		ID:        "mock-appt-" + uuid.NewString()[:8],
		PatientID: req.PatientID,
		Date:      req.Date,
		Time:      req.Time,
		ServiceID: req.ServiceID,
		Status:    "booked",
	}
	for _, s := range mockServices {
		if s.ID == req.ServiceID {
			appt.ServiceName = s.Name
		}
	}
	for _, p := range mockPractitioners {
		if p.ID == req.PractitionerID {
			appt.PractitionerID = p.ID
			appt.PractitionerName = p.Name
		}
	}
	m.appointments[appt.ID] = appt
	return appt, nil
}

func (m *MockAdapter) SearchPatient(ctx context.Context, q PatientSearchQuery) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.patients {
		if !strings.EqualFold(p.FirstName, q.FirstName) || !strings.EqualFold(p.LastName, q.LastName) {
			continue
		}
		if q.DateOfBirth != "" && p.DateOfBirth == q.DateOfBirth {
			return clonePatient(p), nil
		}
		if q.Phone != "" && normalizeDigits(p.Phone) == normalizeDigits(q.Phone) {
			return clonePatient(p), nil
		}
	}
	return nil, NewAdapterError(ErrKindNotFound, "search_patient", "no matching patient", nil)
}

func (m *MockAdapter) ListPatientAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID && a.Status == "booked" {
			out = append(out, *a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MockAdapter) CancelAppointment(ctx context.Context, appointmentID string, reasonCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appointments[appointmentID]
	if !ok {
		return NewAdapterError(ErrKindNotFound, "cancel_appointment", "unknown appointment "+appointmentID, nil)
	}
	appt.Status = "cancelled"
	return nil
}

func (m *MockAdapter) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appointments[req.AppointmentID]
	if !ok {
		return nil, NewAdapterError(ErrKindNotFound, "reschedule", "unknown appointment "+req.AppointmentID, nil)
	}
	appt.Date = req.NewDate
	appt.Time = req.NewTime
	if req.PractitionerID != "" {
		appt.PractitionerID = req.PractitionerID
	}
	if req.ServiceID != "" {
		appt.ServiceID = req.ServiceID
	}
	out := *appt
	return &out, nil
}

// SeedAppointment registers a booked appointment directly; used by tests and
// demo flows that need a pre-existing booking.
func (m *MockAdapter) SeedAppointment(appt Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if appt.Status == "" {
		appt.Status = "booked"
	}
	cp := appt
	m.appointments[appt.ID] = &cp
}

func clonePatient(p *Patient) *Patient {
	cp := *p
	return &cp
}

func normalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sortAppointments(appts []Appointment) {
	for i := 1; i < len(appts); i++ {
		for j := i; j > 0; j-- {
			a, b := appts[j-1], appts[j]
			if a.Date < b.Date || (a.Date == b.Date && a.Time <= b.Time) {
				break
			}
			appts[j-1], appts[j] = b, a
		}
	}
}

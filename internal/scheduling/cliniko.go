package scheduling

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultWindowDays     = 7
)

// ClinikoConfig holds the credentials and routing for a Cliniko-style
// practice-management API.
type ClinikoConfig struct {
	BaseURL        string
	APIKey         string
	BusinessID     string
	PractitionerID string // default practitioner when a query has none
	UserAgent      string
	Timeout        time.Duration
}

// ClinikoAdapter talks to a Cliniko-style REST backend. Authentication is
// HTTP Basic with the API key as username and an empty password.
type ClinikoAdapter struct {
	cfg        ClinikoConfig
	httpClient *http.Client
	authHeader string
}

var _ Adapter = (*ClinikoAdapter)(nil)

// ErrMissingCredentials is returned by NewClinikoAdapter when the config has
// no usable API key, before any network call is attempted.
var ErrMissingCredentials = errors.New("scheduling: cliniko api key is missing")

// NewClinikoAdapter validates the config structurally and returns the
// adapter. No network call happens here; use Ping for a connectivity probe.
func NewClinikoAdapter(cfg ClinikoConfig) (*ClinikoAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingCredentials
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("scheduling: cliniko base url is missing")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "booking-assistant/1.0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	auth := base64.StdEncoding.EncodeToString([]byte(cfg.APIKey + ":"))
	return &ClinikoAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		authHeader: "Basic " + auth,
	}, nil
}

func (c *ClinikoAdapter) Name() string { return "cliniko" }

func (c *ClinikoAdapter) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return NewAdapterError(ErrKindInvalid, op, "request encode failed", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return NewAdapterError(ErrKindInvalid, op, "request build failed", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return NewAdapterError(ErrKindUnreachable, op, "request timed out", err)
		}
		return NewAdapterError(ErrKindUnreachable, op, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewAdapterError(ErrKindCredentials, op, "credentials rejected", nil)
	case resp.StatusCode == http.StatusNotFound:
		return NewAdapterError(ErrKindNotFound, op, "resource not found", nil)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewAdapterError(ErrKindInvalid, op, string(detail), nil)
	case resp.StatusCode >= 500:
		return NewAdapterError(ErrKindUnreachable, op, fmt.Sprintf("backend returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return NewAdapterError(ErrKindInvalid, op, fmt.Sprintf("backend returned %d", resp.StatusCode), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewAdapterError(ErrKindUnreachable, op, "response decode failed", err)
	}
	return nil
}

// Ping probes connectivity with a cheap authenticated read.
func (c *ClinikoAdapter) Ping(ctx context.Context) error {
	var out struct {
		Businesses []json.RawMessage `json:"businesses"`
	}
	return c.do(ctx, "ping", http.MethodGet, "/businesses", nil, nil, &out)
}

type clinikoAppointmentType struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_in_minutes"`
}

func (c *ClinikoAdapter) ListServices(ctx context.Context) ([]Service, error) {
	var out struct {
		AppointmentTypes []clinikoAppointmentType `json:"appointment_types"`
	}
	if err := c.do(ctx, "list_services", http.MethodGet, "/appointment_types", nil, nil, &out); err != nil {
		return nil, err
	}
	services := make([]Service, 0, len(out.AppointmentTypes))
	for _, at := range out.AppointmentTypes {
		services = append(services, Service{ID: at.ID, Name: at.Name, DurationMin: at.DurationMinutes})
	}
	return services, nil
}

type clinikoPractitioner struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (c *ClinikoAdapter) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	var out struct {
		Practitioners []clinikoPractitioner `json:"practitioners"`
	}
	if err := c.do(ctx, "list_practitioners", http.MethodGet, "/practitioners", nil, nil, &out); err != nil {
		return nil, err
	}
	pracs := make([]Practitioner, 0, len(out.Practitioners))
	for _, p := range out.Practitioners {
		pracs = append(pracs, Practitioner{ID: p.ID, Name: strings.TrimSpace(p.FirstName + " " + p.LastName)})
	}
	return pracs, nil
}

type clinikoAvailableTime struct {
	AppointmentStart time.Time `json:"appointment_start"`
}

func (c *ClinikoAdapter) availableTimes(ctx context.Context, practitionerID, serviceID, from, to string) ([]clinikoAvailableTime, error) {
	path := fmt.Sprintf("/businesses/%s/practitioners/%s/appointment_types/%s/available_times",
		url.PathEscape(c.cfg.BusinessID), url.PathEscape(practitionerID), url.PathEscape(serviceID))
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var out struct {
		AvailableTimes []clinikoAvailableTime `json:"available_times"`
	}
	if err := c.do(ctx, "check_availability", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.AvailableTimes, nil
}

func (c *ClinikoAdapter) CheckAvailability(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	if q.Date == "" {
		return nil, NewAdapterError(ErrKindInvalid, "check_availability", "date is required", nil)
	}
	start, err := time.Parse("2006-01-02", q.Date)
	if err != nil {
		return nil, NewAdapterError(ErrKindInvalid, "check_availability", "date must be YYYY-MM-DD", err)
	}

	practitionerID := q.PractitionerID
	if practitionerID == "" {
		practitionerID = c.cfg.PractitionerID
	}

	window := q.WindowDays
	if window <= 0 {
		window = defaultWindowDays
	}
	to := start.AddDate(0, 0, window).Format("2006-01-02")

	times, err := c.availableTimes(ctx, practitionerID, q.ServiceID, q.Date, to)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]Slot)
	for _, at := range times {
		local := at.AppointmentStart
		date := local.Format("2006-01-02")
		hhmm := local.Format("15:04")
		byDate[date] = append(byDate[date], Slot{
			Date:           date,
			Time:           hhmm,
			DisplayTime:    DisplayTime(hhmm),
			PractitionerID: practitionerID,
			ServiceID:      q.ServiceID,
		})
	}
	return buildAvailabilityResult(q, byDate), nil
}

type clinikoAppointment struct {
	ID        string    `json:"id"`
	StartsAt  time.Time `json:"starts_at"`
	PatientID string    `json:"patient_id"`
	Cancelled bool      `json:"cancelled"`
	Service   string    `json:"appointment_type_name"`
}

func appointmentFromCliniko(a clinikoAppointment) Appointment {
	status := "booked"
	if a.Cancelled {
		status = "cancelled"
	}
	return Appointment{
		ID:          a.ID,
		PatientID:   a.PatientID,
		Date:        a.StartsAt.Format("2006-01-02"),
		Time:        a.StartsAt.Format("15:04"),
		ServiceName: a.Service,
		Status:      status,
	}
}

func (c *ClinikoAdapter) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	startsAt, err := time.Parse("2006-01-02 15:04", req.Date+" "+req.Time)
	if err != nil {
		return nil, NewAdapterError(ErrKindInvalid, "create_appointment", "bad date/time", err)
	}
	practitionerID := req.PractitionerID
	if practitionerID == "" {
		practitionerID = c.cfg.PractitionerID
	}

	body := map[string]any{
		"starts_at":           startsAt.Format(time.RFC3339),
		"patient_id":          req.PatientID,
		"practitioner_id":     practitionerID,
		"appointment_type_id": req.ServiceID,
		"business_id":         c.cfg.BusinessID,
		"notes":               req.Notes,
	}
	var out clinikoAppointment
	if err := c.do(ctx, "create_appointment", http.MethodPost, "/individual_appointments", nil, body, &out); err != nil {
		return nil, err
	}
	appt := appointmentFromCliniko(out)
	appt.ServiceID = req.ServiceID
	appt.PractitionerID = practitionerID
	return &appt, nil
}

type clinikoPatient struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
	PhoneNumber string `json:"phone_number"`
}

func (c *ClinikoAdapter) SearchPatient(ctx context.Context, q PatientSearchQuery) (*Patient, error) {
	query := url.Values{}
	query.Set("q[]", "first_name:="+q.FirstName)
	query.Add("q[]", "last_name:="+q.LastName)

	var out struct {
		Patients []clinikoPatient `json:"patients"`
	}
	if err := c.do(ctx, "search_patient", http.MethodGet, "/patients", query, nil, &out); err != nil {
		return nil, err
	}

	for _, p := range out.Patients {
		if q.DateOfBirth != "" && p.DateOfBirth == q.DateOfBirth {
			return patientFromCliniko(p), nil
		}
		if q.Phone != "" && normalizeDigits(p.PhoneNumber) == normalizeDigits(q.Phone) {
			return patientFromCliniko(p), nil
		}
	}
	return nil, NewAdapterError(ErrKindNotFound, "search_patient", "no matching patient", nil)
}

func patientFromCliniko(p clinikoPatient) *Patient {
	return &Patient{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
		Phone:       p.PhoneNumber,
		DateOfBirth: p.DateOfBirth,
	}
}

func (c *ClinikoAdapter) ListPatientAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	path := fmt.Sprintf("/patients/%s/appointments", url.PathEscape(patientID))
	q := url.Values{}
	q.Set("q[]", "starts_at:>"+time.Now().UTC().Format(time.RFC3339))

	var out struct {
		IndividualAppointments []clinikoAppointment `json:"individual_appointments"`
	}
	if err := c.do(ctx, "list_patient_appointments", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}

	appts := make([]Appointment, 0, len(out.IndividualAppointments))
	for _, a := range out.IndividualAppointments {
		if a.Cancelled {
			continue
		}
		appts = append(appts, appointmentFromCliniko(a))
	}
	sortAppointments(appts)
	return appts, nil
}

func (c *ClinikoAdapter) CancelAppointment(ctx context.Context, appointmentID string, reasonCode string) error {
	path := fmt.Sprintf("/individual_appointments/%s/cancel", url.PathEscape(appointmentID))
	body := map[string]any{"cancellation_reason": reasonCode}
	return c.do(ctx, "cancel_appointment", http.MethodPatch, path, nil, body, nil)
}

func (c *ClinikoAdapter) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	startsAt, err := time.Parse("2006-01-02 15:04", req.NewDate+" "+req.NewTime)
	if err != nil {
		return nil, NewAdapterError(ErrKindInvalid, "reschedule", "bad date/time", err)
	}

	body := map[string]any{"starts_at": startsAt.Format(time.RFC3339)}
	if req.PractitionerID != "" {
		body["practitioner_id"] = req.PractitionerID
	}
	if req.ServiceID != "" {
		body["appointment_type_id"] = req.ServiceID
	}
	if req.PatientID != "" {
		body["patient_id"] = req.PatientID
	}

	path := "/individual_appointments/" + url.PathEscape(req.AppointmentID)
	var out clinikoAppointment
	if err := c.do(ctx, "reschedule", http.MethodPatch, path, nil, body, &out); err != nil {
		return nil, err
	}
	appt := appointmentFromCliniko(out)
	return &appt, nil
}

package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/clinicflow/booking-assistant/internal/scheduling"
	"github.com/clinicflow/booking-assistant/pkg/logging"
)

const (
	ToolCheckAvailability       = "check_availability"
	ToolListServices            = "list_services"
	ToolListPractitioners       = "list_practitioners"
	ToolBookAppointment         = "book_appointment"
	ToolFindPatient             = "find_patient"
	ToolListPatientAppointments = "list_patient_appointments"
	ToolCancelAppointment       = "cancel_appointment"
	ToolRescheduleAppointment   = "reschedule_appointment"
)

// mutatingToolKinds maps tool names to the operation they mutate. Tools not
// listed here are read-only.
var mutatingToolKinds = map[string]OperationKind{
	ToolBookAppointment:       OpBooking,
	ToolCancelAppointment:     OpCancel,
	ToolRescheduleAppointment: OpReschedule,
}

// One request shape per tool name, validated against the schema before
// execution.
type checkAvailabilityArgs struct {
	Service      string `json:"service"`
	Date         string `json:"date"`
	Time         string `json:"time,omitempty"`
	Practitioner string `json:"practitioner,omitempty"`
	SearchDays   int    `json:"search_days,omitempty"`
}

type bookAppointmentArgs struct {
	Service      string `json:"service"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	PatientID    string `json:"patient_id,omitempty"`
	Practitioner string `json:"practitioner,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type findPatientArgs struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type listPatientAppointmentsArgs struct {
	PatientID string `json:"patient_id,omitempty"`
}

type cancelAppointmentArgs struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type rescheduleAppointmentArgs struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Practitioner  string `json:"practitioner,omitempty"`
	Service       string `json:"service,omitempty"`
}

// ToolResult is one executed tool call's outcome, fed back to the model as
// a tool message. Failures are payloads, never raised.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

type toolErrorPayload struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ToolExecutor runs tool calls against whichever scheduling adapter the
// selector currently routes to.
type ToolExecutor struct {
	selector *scheduling.Selector
	logger   *logging.Logger
	now      func() time.Time
}

func NewToolExecutor(selector *scheduling.Selector, logger *logging.Logger) *ToolExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	return &ToolExecutor{selector: selector, logger: logger, now: time.Now}
}

// WithExecutorClock overrides the clock, for tests.
func (e *ToolExecutor) WithExecutorClock(now func() time.Time) *ToolExecutor {
	e.now = now
	return e
}

// Catalogue builds the tool specs offered to the model for this turn. The
// mutating cancel and reschedule tools appear only when the session has a
// non-empty appointment-id allow-list, and their appointment_id parameter
// is constrained to exactly that list.
func (e *ToolExecutor) Catalogue(sess *Session) []ToolSpec {
	specs := []ToolSpec{
		{
			Name:        ToolCheckAvailability,
			Description: "Check appointment availability for a service on a date. Provide a time only when the patient asked for a specific time.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service":      map[string]any{"type": "string", "description": "Service name or id, e.g. 'consultation'"},
					"date":         map[string]any{"type": "string", "description": "Requested date in YYYY-MM-DD"},
					"time":         map[string]any{"type": "string", "description": "Requested time in HH:MM, 24-hour; omit for general availability"},
					"practitioner": map[string]any{"type": "string", "description": "Practitioner name or id, if the patient asked for one"},
					"search_days":  map[string]any{"type": "integer", "description": "How many days past the date to search when it is full", "minimum": 0, "maximum": 30},
				},
				"required": []any{"service", "date"},
			},
		},
		{
			Name:        ToolListServices,
			Description: "List the services the clinic offers.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolListPractitioners,
			Description: "List the clinic's practitioners.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolBookAppointment,
			Description: "Book an appointment once the patient has confirmed a specific slot. Requires a patient record; use find_patient first for existing patients.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service":      map[string]any{"type": "string"},
					"date":         map[string]any{"type": "string", "description": "YYYY-MM-DD"},
					"time":         map[string]any{"type": "string", "description": "HH:MM, 24-hour"},
					"patient_id":   map[string]any{"type": "string", "description": "Known patient id, if already found this session"},
					"practitioner": map[string]any{"type": "string"},
					"notes":        map[string]any{"type": "string"},
				},
				"required": []any{"service", "date", "time"},
			},
		},
		{
			Name:        ToolFindPatient,
			Description: "Find an existing patient record by name plus date of birth or phone number.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"first_name":    map[string]any{"type": "string"},
					"last_name":     map[string]any{"type": "string"},
					"date_of_birth": map[string]any{"type": "string", "description": "YYYY-MM-DD"},
					"phone":         map[string]any{"type": "string"},
				},
				"required": []any{"first_name", "last_name"},
			},
		},
		{
			Name:        ToolListPatientAppointments,
			Description: "List the patient's upcoming appointments. Requires the patient to have been found this session.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"patient_id": map[string]any{"type": "string"},
				},
			},
		},
	}

	allowed := sess.AllowedAppointmentIDs
	if len(allowed) > 0 {
		idEnum := make([]any, len(allowed))
		for i, id := range allowed {
			idEnum[i] = id
		}
		specs = append(specs,
			ToolSpec{
				Name:        ToolCancelAppointment,
				Description: "Cancel one of the patient's appointments, after they have explicitly confirmed.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"appointment_id": map[string]any{"type": "string", "enum": idEnum},
						"reason":         map[string]any{"type": "string", "description": "Short reason code, e.g. 'patient_request'"},
					},
					"required": []any{"appointment_id", "reason"},
				},
			},
			ToolSpec{
				Name:        ToolRescheduleAppointment,
				Description: "Move one of the patient's appointments to a new date and time, after they have explicitly confirmed.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"appointment_id": map[string]any{"type": "string", "enum": idEnum},
						"date":           map[string]any{"type": "string", "description": "YYYY-MM-DD"},
						"time":           map[string]any{"type": "string", "description": "HH:MM, 24-hour"},
						"practitioner":   map[string]any{"type": "string"},
						"service":        map[string]any{"type": "string", "description": "Service id, only when the patient wants to change it"},
					},
					"required": []any{"appointment_id", "date", "time"},
				},
			},
		)
	}
	return specs
}

// Execute runs one tool call. All failures come back as error payloads so
// the model can react to them; the session's operation record is updated
// around mutating calls.
func (e *ToolExecutor) Execute(ctx context.Context, sess *Session, catalogue []ToolSpec, call ToolCall) ToolResult {
	started := e.now()
	kind, mutating := mutatingToolKinds[call.Name]
	if mutating {
		sess.RecordOperation(kind, StatusPending, started)
	}

	result := e.execute(ctx, sess, catalogue, call)

	if mutating {
		status := StatusSuccess
		if result.IsError {
			status = StatusFailed
		}
		sess.RecordOperation(kind, status, e.now())
	}
	outcome := "ok"
	if result.IsError {
		outcome = "error"
	}
	toolExecutionsTotal.WithLabelValues(call.Name, outcome).Inc()
	e.logger.Info("tool executed",
		"tool", call.Name,
		"session", sess.Key,
		"outcome", outcome,
		"duration_ms", e.now().Sub(started).Milliseconds(),
	)
	return result
}

func (e *ToolExecutor) execute(ctx context.Context, sess *Session, catalogue []ToolSpec, call ToolCall) ToolResult {
	spec := findSpec(catalogue, call.Name)
	if spec == nil {
		return errorResult(call, "invalid", fmt.Sprintf("unknown tool %q", call.Name), "")
	}
	if err := validateToolArgs(spec, call.Arguments); err != nil {
		return errorResult(call, "invalid", "arguments failed validation", err.Error())
	}

	adapter := e.selector.Adapter()
	switch call.Name {
	case ToolCheckAvailability:
		return e.checkAvailability(ctx, sess, adapter, call)
	case ToolListServices:
		services, err := adapter.ListServices(ctx)
		if err != nil {
			return e.adapterError(call, err)
		}
		return jsonResult(call, map[string]any{"services": services})
	case ToolListPractitioners:
		practitioners, err := adapter.ListPractitioners(ctx)
		if err != nil {
			return e.adapterError(call, err)
		}
		return jsonResult(call, map[string]any{"practitioners": practitioners})
	case ToolBookAppointment:
		return e.bookAppointment(ctx, sess, adapter, call)
	case ToolFindPatient:
		return e.findPatient(ctx, sess, adapter, call)
	case ToolListPatientAppointments:
		return e.listPatientAppointments(ctx, sess, adapter, call)
	case ToolCancelAppointment:
		return e.cancelAppointment(ctx, sess, adapter, call)
	case ToolRescheduleAppointment:
		return e.rescheduleAppointment(ctx, sess, adapter, call)
	}
	return errorResult(call, "invalid", fmt.Sprintf("unknown tool %q", call.Name), "")
}

func (e *ToolExecutor) checkAvailability(ctx context.Context, sess *Session, adapter scheduling.Adapter, call ToolCall) ToolResult {
	var args checkAvailabilityArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorResult(call, "invalid", "malformed arguments", err.Error())
	}
	result, err := adapter.CheckAvailability(ctx, scheduling.AvailabilityQuery{
		ServiceID:      args.Service,
		Date:           args.Date,
		Time:           args.Time,
		PractitionerID: args.Practitioner,
		WindowDays:     args.SearchDays,
	})
	if err != nil {
		return e.adapterError(call, err)
	}

	if len(result.Slots) > 0 {
		offer := Offer{Kind: OfferAvailability, At: e.now()}
		for _, slot := range result.Slots {
			offer.Slots = append(offer.Slots, OfferSlot{
				Date:         slot.Date,
				Time:         slot.Time,
				DisplayTime:  slot.DisplayTime,
				Practitioner: slot.PractitionerName,
				Service:      slot.ServiceName,
			})
		}
		sess.RecordOffer(offer)
	}
	return jsonResult(call, result)
}

func (e *ToolExecutor) bookAppointment(ctx context.Context, sess *Session, adapter scheduling.Adapter, call ToolCall) ToolResult {
	var args bookAppointmentArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorResult(call, "invalid", "malformed arguments", err.Error())
	}
	patientID := args.PatientID
	if patientID == "" {
		patientID = sess.PatientID
	}
	appt, err := adapter.CreateAppointment(ctx, scheduling.CreateAppointmentRequest{
		PatientID:      patientID,
		ServiceID:      args.Service,
		PractitionerID: args.Practitioner,
		Date:           args.Date,
		Time:           args.Time,
		Notes:          args.Notes,
	})
	if err != nil {
		return e.adapterError(call, err)
	}
	sess.AllowAppointmentIDs(appt.ID)
	if appt.PatientID != "" {
		sess.PatientID = appt.PatientID
	}
	return jsonResult(call, map[string]any{"appointment": appt, "confirmed": true})
}

func (e *ToolExecutor) findPatient(ctx context.Context, sess *Session, adapter scheduling.Adapter, call ToolCall) ToolResult {
	var args findPatientArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorResult(call, "invalid", "malformed arguments", err.Error())
	}
	if args.DateOfBirth == "" && args.Phone == "" {
		return errorResult(call, "invalid", "need date_of_birth or phone alongside the name", "")
	}
	patient, err := adapter.SearchPatient(ctx, scheduling.PatientSearchQuery{
		FirstName:   args.FirstName,
		LastName:    args.LastName,
		DateOfBirth: args.DateOfBirth,
		Phone:       args.Phone,
	})
	if err != nil {
		return e.adapterError(call, err)
	}
	sess.PatientID = patient.ID
	return jsonResult(call, map[string]any{"patient": patient})
}

func (e *ToolExecutor) listPatientAppointments(ctx context.Context, sess *Session, adapter scheduling.Adapter, call ToolCall) ToolResult {
	var args listPatientAppointmentsArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorResult(call, "invalid", "malformed arguments", err.Error())
	}
	patientID := args.PatientID
	if patientID == "" {
		patientID = sess.PatientID
	}
	if patientID == "" {
		return errorResult(call, "invalid", "no patient identified yet; use find_patient first", "")
	}
	appointments, err := adapter.ListPatientAppointments(ctx, patientID)
	if err != nil {
		return e.adapterError(call, err)
	}

	// Ids discovered here become legitimate targets for cancel/reschedule.
	ids := make([]string, 0, len(appointments))
	for _, appt := range appointments {
		ids = append(ids, appt.ID)
	}
	sess.AllowAppointmentIDs(ids...)
	if len(appointments) > 0 {
		first := appointments[0]
		sess.RecordOffer(Offer{
			Kind: OfferAppointmentDetails,
			At:   e.now(),
			Appointment: &OfferAppointment{
				ID:   first.ID,
				Date: first.Date,
				Time: first.Time,
			},
		})
	}
	return jsonResult(call, map[string]any{"appointments": appointments})
}

func (e *ToolExecutor) cancelAppointment(ctx context.Context, sess *Session, adapter scheduling.Adapter, call ToolCall) ToolResult {
	var args cancelAppointmentArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorResult(call, "invalid", "malformed arguments", err.Error())
	}
	if !sess.IsAppointmentAllowed(args.AppointmentID) {
		return errorResult(call, "invalid_reference",
			"appointment id was not discovered in this conversation", args.AppointmentID)
	}
	if err := adapter.CancelAppointment(ctx, args.AppointmentID, args.Reason); err != nil {
		return e.adapterError(call, err)
	}
	return jsonResult(call, map[string]any{"cancelled": true, "appointment_id": args.AppointmentID})
}

func (e *ToolExecutor) rescheduleAppointment(ctx context.Context, sess *Session, adapter scheduling.Adapter, call ToolCall) ToolResult {
	var args rescheduleAppointmentArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorResult(call, "invalid", "malformed arguments", err.Error())
	}
	if !sess.IsAppointmentAllowed(args.AppointmentID) {
		return errorResult(call, "invalid_reference",
			"appointment id was not discovered in this conversation", args.AppointmentID)
	}
	appt, err := adapter.Reschedule(ctx, scheduling.RescheduleRequest{
		AppointmentID:  args.AppointmentID,
		NewDate:        args.Date,
		NewTime:        args.Time,
		PractitionerID: args.Practitioner,
		ServiceID:      args.Service,
		PatientID:      sess.PatientID,
	})
	if err != nil {
		return e.adapterError(call, err)
	}
	return jsonResult(call, map[string]any{"appointment": appt, "rescheduled": true})
}

// adapterError converts an adapter failure into a structured payload and
// lets the selector re-evaluate fallback state.
func (e *ToolExecutor) adapterError(call ToolCall, err error) ToolResult {
	e.selector.NoteFailure(err)
	kind := string(scheduling.ErrorKindOf(err))
	e.logger.Warn("tool call failed against scheduling backend",
		"tool", call.Name, "kind", kind, "error", err.Error())
	return errorResult(call, kind, "scheduling backend error", err.Error())
}

func findSpec(catalogue []ToolSpec, name string) *ToolSpec {
	for i := range catalogue {
		if catalogue[i].Name == name {
			return &catalogue[i]
		}
	}
	return nil
}

// validateToolArgs checks the raw arguments against the tool's schema
// before anything touches the adapter.
func validateToolArgs(spec *ToolSpec, raw json.RawMessage) error {
	schemaBytes, err := json.Marshal(spec.Parameters)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaBytes)))
	if err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	payload := raw
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("unmarshal arguments: %w", err)
	}
	return schema.Validate(doc)
}

func jsonResult(call ToolCall, payload any) ToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return errorResult(call, "internal", "failed to encode tool result", err.Error())
	}
	return ToolResult{CallID: call.ID, Name: call.Name, Content: string(data)}
}

func errorResult(call ToolCall, kind, message, detail string) ToolResult {
	payload := toolErrorPayload{Error: message, Kind: kind, Detail: detail}
	data, _ := json.Marshal(payload)
	return ToolResult{CallID: call.ID, Name: call.Name, Content: string(data), IsError: true}
}

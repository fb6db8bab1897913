// Package assistant implements the dialogue orchestration core: per-session
// memory, entity extraction, reference resolution, the LLM tool-calling
// engine, and the reply integrity guard.
package assistant

import (
	"time"
)

// ChatMessage is one turn of the stored conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EntityField is a single extracted value with its last-updated timestamp.
type EntityField struct {
	Value     string    `json:"value,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Set updates the field value and timestamp.
func (f *EntityField) Set(value string, now time.Time) {
	f.Value = value
	f.UpdatedAt = now
}

// IsFresh reports whether the field was updated within window of now. Stale
// entities must not silently override parameters the model supplied.
func (f EntityField) IsFresh(now time.Time, window time.Duration) bool {
	if f.Value == "" {
		return false
	}
	return now.Sub(f.UpdatedAt) <= window
}

// EntitySnapshot is the per-session record of everything extracted from the
// conversation so far.
type EntitySnapshot struct {
	Name          EntityField `json:"name,omitempty"`
	Phone         EntityField `json:"phone,omitempty"`
	Email         EntityField `json:"email,omitempty"`
	DateOfBirth   EntityField `json:"date_of_birth,omitempty"`   // YYYY-MM-DD
	Service       EntityField `json:"service,omitempty"`
	PreferredDate EntityField `json:"preferred_date,omitempty"` // YYYY-MM-DD
	PreferredTime EntityField `json:"preferred_time,omitempty"` // HH:MM
}

// OperationKind names a mutating booking operation.
type OperationKind string

const (
	OpBooking    OperationKind = "booking"
	OpCancel     OperationKind = "cancel"
	OpReschedule OperationKind = "reschedule"
)

// OperationStatus is the lifecycle of a mutating operation attempt.
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	StatusSuccess OperationStatus = "success"
	StatusFailed  OperationStatus = "failed"
)

// OperationRecord is the status and timestamp of the most recent attempt of
// one operation kind.
type OperationRecord struct {
	Kind      OperationKind   `json:"kind"`
	Status    OperationStatus `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OfferKind tags what the assistant most recently presented to the user.
type OfferKind string

const (
	OfferAvailability       OfferKind = "availability"
	OfferAppointmentDetails OfferKind = "appointment_details"
)

// OfferSlot is one candidate slot inside an availability offer.
type OfferSlot struct {
	Date         string `json:"date"` // YYYY-MM-DD
	Time         string `json:"time"` // HH:MM
	DisplayTime  string `json:"display_time,omitempty"`
	Practitioner string `json:"practitioner,omitempty"`
	Service      string `json:"service,omitempty"`
}

// OfferAppointment is the payload of an appointment_details offer.
type OfferAppointment struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// Offer records what the assistant presented, so short replies ("9:30",
// "yes") can be mapped back to it.
type Offer struct {
	Kind        OfferKind         `json:"kind"`
	At          time.Time         `json:"at"`
	Slots       []OfferSlot       `json:"slots,omitempty"`
	Appointment *OfferAppointment `json:"appointment,omitempty"`
}

const (
	// maxOffers bounds the per-session offer history.
	maxOffers = 5
	// offerFreshWindow is how long an offer stays resolvable.
	offerFreshWindow = 10 * time.Minute
	// entityFreshWindow is how recently an entity must have been extracted
	// to override a model-supplied parameter.
	entityFreshWindow = 10 * time.Second
)

// Session is the conversational state for one end-user thread. It is never
// shared across session keys.
type Session struct {
	Key          string    `json:"key"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	Messages []ChatMessage  `json:"messages"`
	Entities EntitySnapshot `json:"entities"`

	// AllowedAppointmentIDs is the set of appointment ids legitimately
	// discovered in this session; mutating tools may only target these.
	AllowedAppointmentIDs []string `json:"allowed_appointment_ids,omitempty"`
	PatientID             string   `json:"patient_id,omitempty"`

	Operations map[OperationKind]OperationRecord `json:"operations,omitempty"`
	Offers     []Offer                           `json:"offers,omitempty"`
}

// NewSession creates an empty session for key.
func NewSession(key string, now time.Time) *Session {
	return &Session{
		Key:          key,
		CreatedAt:    now,
		LastActiveAt: now,
		Operations:   make(map[OperationKind]OperationRecord),
	}
}

// AppendMessage adds a message and bumps activity.
func (s *Session) AppendMessage(role, content string, now time.Time) {
	s.Messages = append(s.Messages, ChatMessage{Role: role, Content: content, Timestamp: now})
	s.LastActiveAt = now
}

// AllowAppointmentIDs merges ids discovered by this session's tool results
// into the allow-list. The list grows monotonically for the session's life.
func (s *Session) AllowAppointmentIDs(ids ...string) {
	for _, id := range ids {
		if id == "" || s.IsAppointmentAllowed(id) {
			continue
		}
		s.AllowedAppointmentIDs = append(s.AllowedAppointmentIDs, id)
	}
}

// IsAppointmentAllowed reports whether id was discovered in this session.
func (s *Session) IsAppointmentAllowed(id string) bool {
	for _, allowed := range s.AllowedAppointmentIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// RecordOperation updates the status of a mutating operation attempt.
func (s *Session) RecordOperation(kind OperationKind, status OperationStatus, now time.Time) {
	if s.Operations == nil {
		s.Operations = make(map[OperationKind]OperationRecord)
	}
	s.Operations[kind] = OperationRecord{Kind: kind, Status: status, UpdatedAt: now}
}

// OperationSucceeded reports whether the most recent attempt of kind ended
// in success.
func (s *Session) OperationSucceeded(kind OperationKind) bool {
	rec, ok := s.Operations[kind]
	return ok && rec.Status == StatusSuccess
}

// RecordOffer appends an offer, keeping only the most recent maxOffers.
func (s *Session) RecordOffer(offer Offer) {
	s.Offers = append(s.Offers, offer)
	if len(s.Offers) > maxOffers {
		s.Offers = s.Offers[len(s.Offers)-maxOffers:]
	}
}

// LatestOffer returns the most recent offer of kind that is still inside the
// freshness window, or nil.
func (s *Session) LatestOffer(kind OfferKind, now time.Time) *Offer {
	for i := len(s.Offers) - 1; i >= 0; i-- {
		o := s.Offers[i]
		if o.Kind != kind {
			continue
		}
		if now.Sub(o.At) > offerFreshWindow {
			return nil
		}
		return &s.Offers[i]
	}
	return nil
}

// Clone deep-copies the session so exports never alias live state.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = append([]ChatMessage(nil), s.Messages...)
	cp.AllowedAppointmentIDs = append([]string(nil), s.AllowedAppointmentIDs...)
	cp.Offers = make([]Offer, len(s.Offers))
	for i, o := range s.Offers {
		cp.Offers[i] = o
		cp.Offers[i].Slots = append([]OfferSlot(nil), o.Slots...)
		if o.Appointment != nil {
			appt := *o.Appointment
			cp.Offers[i].Appointment = &appt
		}
	}
	cp.Operations = make(map[OperationKind]OperationRecord, len(s.Operations))
	for k, v := range s.Operations {
		cp.Operations[k] = v
	}
	return &cp
}

// RecentMessages returns up to limit of the newest messages in order.
func (s *Session) RecentMessages(limit int) []ChatMessage {
	if limit <= 0 || len(s.Messages) <= limit {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-limit:]
}

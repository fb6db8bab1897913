package assistant

import (
	"fmt"
	"strings"
	"time"
)

// ClinicContext is the per-clinic information woven into the system prompt.
type ClinicContext struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone,omitempty"`
	Hours    string `json:"hours,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// LocalTime converts t into the clinic's timezone so "today" and relative
// dates follow the clinic's calendar day, not the server's. An empty or
// unknown timezone leaves t as is.
func (c ClinicContext) LocalTime(t time.Time) time.Time {
	if c.Timezone == "" {
		return t
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return t
	}
	return t.In(loc)
}

const basePolicy = `You are the booking assistant for %s. You help patients check availability, book, cancel, and reschedule appointments.

Rules:
- Be warm and concise. One question at a time.
- Never invent availability, appointment details, or patient records. Only state what a tool returned this conversation.
- Never claim a booking, cancellation, or reschedule succeeded unless the matching tool call succeeded in this turn.
- Before any cancellation or reschedule, restate the appointment and ask the patient to confirm.
- For existing patients, verify identity with full name plus date of birth or phone before discussing their appointments.

Date interpretation:
- Today is %s (%s).
- Resolve relative dates against today. A bare weekday means the next future occurrence of that weekday.
- Appointment dates are always today or later. Dates of birth are always in the past.
- Use YYYY-MM-DD for dates and 24-hour HH:MM for times in tool calls; show patients friendly forms like "9:30 AM".

Formatting:
- Plain text only, no markdown.
- When offering slots, list at most five, each with its day and time.`

// BuildSystemPrompt assembles clinic policy, date rules, the known-entity
// summary, and the resolved-reference hint for the first LLM pass.
func BuildSystemPrompt(clinic ClinicContext, sess *Session, res *Resolution, now time.Time) string {
	name := clinic.Name
	if name == "" {
		name = "the clinic"
	}
	now = clinic.LocalTime(now)
	var b strings.Builder
	fmt.Fprintf(&b, basePolicy, name, now.Format("2006-01-02"), now.Weekday())

	if clinic.Hours != "" {
		fmt.Fprintf(&b, "\n\nClinic hours: %s.", clinic.Hours)
	}
	if clinic.Phone != "" {
		fmt.Fprintf(&b, "\nClinic phone for anything you cannot handle: %s.", clinic.Phone)
	}

	if summary := entitySummary(sess); summary != "" {
		b.WriteString("\n\nKnown so far in this conversation:\n")
		b.WriteString(summary)
	}

	switch {
	case res != nil:
		fmt.Fprintf(&b, "\n\nThe patient's latest message refers to a previously offered slot: %s at %s. Treat that as the requested date and time unless they say otherwise.",
			res.Date, res.Time)
	default:
		if hint := freshEntityHint(sess, now); hint != "" {
			b.WriteString("\n\n")
			b.WriteString(hint)
		}
	}
	return b.String()
}

// freshEntityHint surfaces date and time values extracted from the message
// being processed right now. Older extractions stay in the background summary
// only, so a stale preference never carries override force over what the
// patient or the model says in this turn.
func freshEntityHint(sess *Session, now time.Time) string {
	if sess == nil {
		return ""
	}
	var parts []string
	if sess.Entities.PreferredDate.IsFresh(now, entityFreshWindow) {
		parts = append(parts, "the date "+sess.Entities.PreferredDate.Value)
	}
	if sess.Entities.PreferredTime.IsFresh(now, entityFreshWindow) {
		parts = append(parts, "the time "+sess.Entities.PreferredTime.Value)
	}
	if len(parts) == 0 {
		return ""
	}
	return "The patient's latest message gives " + strings.Join(parts, " and ") + ". Use these for tool calls in this turn, ahead of any older preference listed above."
}

func entitySummary(sess *Session) string {
	if sess == nil {
		return ""
	}
	var lines []string
	add := func(label string, f EntityField) {
		if f.Value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, f.Value))
		}
	}
	e := sess.Entities
	add("Name", e.Name)
	add("Phone", e.Phone)
	add("Email", e.Email)
	add("Date of birth", e.DateOfBirth)
	add("Service", e.Service)
	add("Preferred date", e.PreferredDate)
	add("Preferred time", e.PreferredTime)
	if sess.PatientID != "" {
		lines = append(lines, fmt.Sprintf("- Patient record: found (id %s)", sess.PatientID))
	}
	return strings.Join(lines, "\n")
}

package assistant

import (
	"regexp"
	"strings"
	"time"
)

// Extraction is a partial entity update mined from one message. Absent
// fields stay empty; rejected candidates are listed with their reasons so
// misses are diagnosable without being errors.
type Extraction struct {
	Name        string
	Phone       string
	Email       string
	DateOfBirth string // YYYY-MM-DD
	Service     string
	Date        string // YYYY-MM-DD, appointment preference
	Time        string // HH:MM

	Rejections []Rejection
}

// Rejection explains why a candidate value was not accepted.
type Rejection struct {
	Field     string `json:"field"`
	Candidate string `json:"candidate"`
	Reason    string `json:"reason"`
}

// IsEmpty reports whether nothing was extracted.
func (e Extraction) IsEmpty() bool {
	return e.Name == "" && e.Phone == "" && e.Email == "" && e.DateOfBirth == "" &&
		e.Service == "" && e.Date == "" && e.Time == ""
}

const (
	minBirthYear = 1900
	// maxBirthYear caps the plausible patient birth-year band.
	maxBirthYear = 2015
)

var (
	emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRE = regexp.MustCompile(`(?:\+?\d[\d\s\-().]{6,16}\d)`)
	nameRE  = regexp.MustCompile(`(?i)(?:my name is|i am|i'm|this is|it's|call me)\s+([A-Za-z][a-z]+(?:\s+[A-Za-z][a-z]+){0,2})`)

	birthContextRE = regexp.MustCompile(`(?i)\b(birth|born|dob|d\.o\.b|birthday|birthdate)\b`)
)

// Extractor mines structured entities from free-text messages using an
// ordered list of typed strategies. Strategies run in a fixed order so
// precedence is auditable; each can accept or reject independently.
type Extractor struct {
	knownServices []string
	strategies    []strategy
}

type strategy struct {
	name string
	run  func(x *Extractor, text string, role string, now time.Time, out *Extraction)
}

// NewExtractor builds the default strategy chain. knownServices are the
// clinic's patient-facing service names, matched case-insensitively.
func NewExtractor(knownServices []string) *Extractor {
	x := &Extractor{knownServices: knownServices}
	x.strategies = []strategy{
		{"email", (*Extractor).extractEmail},
		{"phone", (*Extractor).extractPhone},
		{"name", (*Extractor).extractName},
		{"dates", (*Extractor).extractDates},
		{"time", (*Extractor).extractTime},
		{"service", (*Extractor).extractService},
	}
	return x
}

// Extract runs every strategy against the message. Only user messages are
// mined; assistant text would pollute the snapshot with the bot's own words.
func (x *Extractor) Extract(text, role string, now time.Time) Extraction {
	var out Extraction
	if role != RoleUser || strings.TrimSpace(text) == "" {
		return out
	}
	for _, s := range x.strategies {
		s.run(x, text, role, now, &out)
	}
	return out
}

func (x *Extractor) extractEmail(text, _ string, _ time.Time, out *Extraction) {
	if m := emailRE.FindString(text); m != "" {
		out.Email = strings.ToLower(m)
	}
}

func (x *Extractor) extractPhone(text, _ string, _ time.Time, out *Extraction) {
	// Strip any date tokens first; 2026-03-05 would otherwise look like a
	// phone number.
	cleaned := isoDateRE.ReplaceAllString(text, " ")
	cleaned = slashDateRE.ReplaceAllString(cleaned, " ")
	m := phoneRE.FindString(cleaned)
	if m == "" {
		return
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, m)
	if len(digits) < 8 || len(digits) > 15 {
		out.Rejections = append(out.Rejections, Rejection{
			Field: "phone", Candidate: m, Reason: "implausible digit count",
		})
		return
	}
	if strings.HasPrefix(strings.TrimSpace(m), "+") {
		digits = "+" + digits
	}
	out.Phone = digits
}

func (x *Extractor) extractName(text, _ string, _ time.Time, out *Extraction) {
	m := nameRE.FindStringSubmatch(text)
	if len(m) != 2 {
		return
	}
	candidate := strings.TrimSpace(m[1])
	// Single lowercase words after "i'm" are usually adjectives, not names
	// ("i'm flexible", "i'm new").
	first := strings.Fields(candidate)[0]
	if first == strings.ToLower(first) {
		out.Rejections = append(out.Rejections, Rejection{
			Field: "name", Candidate: candidate, Reason: "not capitalized, likely not a name",
		})
		return
	}
	if stopword(strings.ToLower(first)) {
		out.Rejections = append(out.Rejections, Rejection{
			Field: "name", Candidate: candidate, Reason: "stopword, likely not a name",
		})
		return
	}
	out.Name = candidate
}

func stopword(w string) bool {
	switch w {
	case "new", "existing", "returning", "looking", "interested", "trying", "calling", "booking", "available", "flexible", "free", "sorry", "wondering", "just", "not", "here", "a", "an", "the":
		return true
	}
	return false
}

// extractDates mines every date mention and routes each candidate to the
// date-of-birth or appointment-date field. The two must never
// cross-contaminate: a birth-band value never populates the appointment
// date and a future date never populates the date of birth.
func (x *Extractor) extractDates(text, _ string, now time.Time, out *Extraction) {
	hasBirthContext := birthContextRE.MatchString(text)
	today := now.Format("2006-01-02")

	for _, cand := range findDates(text, now) {
		inBirthBand := cand.year >= minBirthYear && cand.year <= maxBirthYear

		// Date-of-birth routing: a candidate is a birth date only when its
		// year is plausible AND it either sits near a birth-context word or
		// is a bare ISO token inside the band.
		if inBirthBand && (hasBirthContext || cand.bareISO) {
			if cand.value > today {
				out.Rejections = append(out.Rejections, Rejection{
					Field: "date_of_birth", Candidate: cand.literal, Reason: "birth date in the future",
				})
				continue
			}
			if out.DateOfBirth == "" {
				out.DateOfBirth = cand.value
			}
			continue
		}

		// Appointment-date routing: today or later only.
		if cand.value < today {
			reason := "appointment date in the past"
			if hasBirthContext {
				reason = "year outside plausible birth band"
			}
			out.Rejections = append(out.Rejections, Rejection{
				Field: "date", Candidate: cand.literal, Reason: reason,
			})
			continue
		}
		if out.Date == "" {
			out.Date = cand.value
		}
	}
}

func (x *Extractor) extractTime(text, _ string, _ time.Time, out *Extraction) {
	if v, ok := findTime(text); ok {
		out.Time = v
	}
}

func (x *Extractor) extractService(text, _ string, _ time.Time, out *Extraction) {
	lower := strings.ToLower(text)
	for _, svc := range x.knownServices {
		if svc != "" && strings.Contains(lower, strings.ToLower(svc)) {
			out.Service = svc
			return
		}
	}
	for _, generic := range []string{"initial consultation", "follow-up", "follow up", "consultation", "check-up", "checkup", "review"} {
		if strings.Contains(lower, generic) {
			out.Service = generic
			return
		}
	}
}

// mergeExtraction folds an extraction into the session snapshot. A new
// value overwrites the stored one only when it passed validation; it never
// regresses a field to an older extraction (repeating the same merge is
// idempotent).
func mergeExtraction(s *Session, ex Extraction, now time.Time) {
	set := func(f *EntityField, v string) {
		if v == "" || v == f.Value {
			return
		}
		f.Set(v, now)
	}
	set(&s.Entities.Name, ex.Name)
	set(&s.Entities.Phone, ex.Phone)
	set(&s.Entities.Email, ex.Email)
	set(&s.Entities.DateOfBirth, ex.DateOfBirth)
	set(&s.Entities.Service, ex.Service)
	set(&s.Entities.PreferredDate, ex.Date)
	set(&s.Entities.PreferredTime, ex.Time)
}

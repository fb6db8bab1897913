package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Resolution maps a short reply back to something the assistant previously
// offered. Source is always "previous_offer" so downstream logging can tell
// resolved context apart from values the user typed explicitly.
type Resolution struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Source string `json:"source"`

	Slot        *OfferSlot        `json:"slot,omitempty"`
	Appointment *OfferAppointment `json:"appointment,omitempty"`
}

const sourcePreviousOffer = "previous_offer"

var confirmationRE = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|yup|sure|ok|okay|sounds good|that works|perfect|great|please|go ahead|book it|confirm(?:ed)?|the first one|first one)[\s.!]*$`)

// explicitDateREs are date forms that carry their own day, so a reply
// containing one of them is a fresh request, not a reference back.
var explicitDateREs = []*regexp.Regexp{
	isoDateRE,
	slashDateRE,
	monthDayRE,
	dayMonthRE,
	regexp.MustCompile(`(?i)\b(today|tomorrow)\b`),
}

// Resolver maps short follow-up replies onto the session's most recent
// offer. It holds no state of its own; offers live on the session.
type Resolver struct {
	now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// WithResolverClock overrides the clock, for tests.
func (r *Resolver) WithResolverClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func hasExplicitDate(text string) bool {
	lower := strings.ToLower(text)
	for _, re := range explicitDateREs {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func weekdayOnly(text string) (time.Weekday, bool) {
	lower := strings.ToLower(text)
	m := bareWeekdayRE.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	wd, ok := weekdaysByName[m[1]]
	return wd, ok
}

// IsReferencingPreviousOffer reports whether the message looks like a reply
// to something already offered: a bare confirmation, a time with no date, or
// a weekday with no other date form.
func (r *Resolver) IsReferencingPreviousOffer(sess *Session, message string) bool {
	if sess == nil || sess.LatestOffer(OfferAvailability, r.now()) == nil &&
		sess.LatestOffer(OfferAppointmentDetails, r.now()) == nil {
		return false
	}
	if confirmationRE.MatchString(message) {
		return true
	}
	if hasExplicitDate(message) {
		return false
	}
	if _, ok := findTime(message); ok {
		return true
	}
	if _, ok := weekdayOnly(message); ok {
		return true
	}
	return false
}

// Resolve maps the message onto the latest fresh availability offer. It
// returns nil when the message carries its own date or nothing in the offer
// matches, signalling the caller to treat the message as a fresh request.
func (r *Resolver) Resolve(sess *Session, message string) *Resolution {
	if sess == nil || hasExplicitDate(message) {
		return nil
	}
	now := r.now()

	if hhmm, ok := findTime(message); ok {
		offer := sess.LatestOffer(OfferAvailability, now)
		if offer == nil {
			return nil
		}
		// "monday at 9am" names a day as well as a time; only slots on that
		// weekday are candidates.
		wd, hasWeekday := weekdayOnly(message)
		for i := range offer.Slots {
			slot := &offer.Slots[i]
			if hasWeekday && !slotOnWeekday(slot, wd) {
				continue
			}
			if slotTimeMatches(slot, hhmm) {
				return &Resolution{
					Date:   slot.Date,
					Time:   slot.Time,
					Source: sourcePreviousOffer,
					Slot:   slot,
				}
			}
		}
		return nil
	}

	if wd, ok := weekdayOnly(message); ok {
		offer := sess.LatestOffer(OfferAvailability, now)
		if offer == nil {
			return nil
		}
		for i := range offer.Slots {
			slot := &offer.Slots[i]
			if slotOnWeekday(slot, wd) {
				return &Resolution{
					Date:   slot.Date,
					Time:   slot.Time,
					Source: sourcePreviousOffer,
					Slot:   slot,
				}
			}
		}
		return nil
	}

	if confirmationRE.MatchString(message) {
		if offer := sess.LatestOffer(OfferAvailability, now); offer != nil && len(offer.Slots) > 0 {
			slot := &offer.Slots[0]
			return &Resolution{Date: slot.Date, Time: slot.Time, Source: sourcePreviousOffer, Slot: slot}
		}
		if offer := sess.LatestOffer(OfferAppointmentDetails, now); offer != nil && offer.Appointment != nil {
			appt := offer.Appointment
			return &Resolution{Date: appt.Date, Time: appt.Time, Source: sourcePreviousOffer, Appointment: appt}
		}
	}
	return nil
}

func slotOnWeekday(slot *OfferSlot, wd time.Weekday) bool {
	d, err := time.Parse("2006-01-02", slot.Date)
	return err == nil && d.Weekday() == wd
}

// slotTimeMatches compares a normalized HH:MM reply against a slot,
// accepting the 12-hour reading of an ambiguous morning time ("2:00"
// matching a 14:00 slot).
func slotTimeMatches(slot *OfferSlot, hhmm string) bool {
	if slot.Time == hhmm || slot.DisplayTime == hhmm {
		return true
	}
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 1 || hour > 11 {
		return false
	}
	return slot.Time == fmt.Sprintf("%02d:%s", hour+12, parts[1])
}

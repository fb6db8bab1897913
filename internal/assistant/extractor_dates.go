package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date and time phrase parsing. Every parser returns a normalized value
// ("2006-01-02" dates, "15:04" times) and whether it matched.

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

const monthPattern = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`
const weekdayPattern = `sun(?:day)?|mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:rs(?:day)?)?|fri(?:day)?|sat(?:urday)?`

var (
	isoDateRE   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRE = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	// "March 5", "March 5th 2026", "Mar 5, 2026"
	monthDayRE = regexp.MustCompile(`\b(` + monthPattern + `)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?\b`)
	// "5 March", "5th of March 2026"
	dayMonthRE = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthPattern + `)(?:,?\s*(\d{4}))?\b`)
	// "next thursday", bare "thursday"
	nextWeekdayRE = regexp.MustCompile(`\bnext\s+(` + weekdayPattern + `)\b`)
	bareWeekdayRE = regexp.MustCompile(`\b(` + weekdayPattern + `)\b`)

	clockTimeRE = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)\b`)
	hhmmRE      = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	// "quarter past 9", "half past 2pm", "quarter to 5"
	relClockRE = regexp.MustCompile(`\b(quarter|half)\s+(past|to)\s+(\d{1,2})\s*(am|pm)?\b`)
)

// parsedDate carries where the date token came from, so callers can apply
// context rules (birth-year band vs appointment date).
type parsedDate struct {
	value   string // YYYY-MM-DD
	literal string // matched text
	bareISO bool   // a bare YYYY-MM-DD token
	year    int
}

func formatDate(y int, m time.Month, d int) (string, bool) {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != m || t.Day() != d {
		return "", false // e.g. Feb 30 rolled over
	}
	return t.Format("2006-01-02"), true
}

// findDates mines every date phrasing from text, in precedence order:
// ISO, slash, prose month-day / day-month, relative tokens.
func findDates(text string, now time.Time) []parsedDate {
	lower := strings.ToLower(text)
	var out []parsedDate

	for _, m := range isoDateRE.FindAllStringSubmatch(lower, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if v, ok := formatDate(y, time.Month(mo), d); ok {
			out = append(out, parsedDate{value: v, literal: m[0], bareISO: true, year: y})
		}
	}

	for _, m := range slashDateRE.FindAllStringSubmatch(lower, -1) {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		year := now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
		}
		// Day-first by default; swap when the first component cannot be a day.
		day, month := first, second
		if month > 12 && day <= 12 {
			day, month = month, day
		}
		if month > 12 {
			continue
		}
		if v, ok := formatDate(year, time.Month(month), day); ok {
			out = append(out, parsedDate{value: v, literal: m[0], year: year})
		}
	}

	prose := func(dayStr, monthStr, yearStr, literal string) {
		day, _ := strconv.Atoi(dayStr)
		month, ok := monthsByName[monthStr]
		if !ok {
			return
		}
		year := now.Year()
		explicitYear := yearStr != ""
		if explicitYear {
			year, _ = strconv.Atoi(yearStr)
		}
		v, ok := formatDate(year, month, day)
		if !ok {
			return
		}
		// A bare "March 5" that already passed this year means next year.
		if !explicitYear && v < now.Format("2006-01-02") {
			if rolled, ok := formatDate(year+1, month, day); ok {
				v = rolled
				year++
			}
		}
		out = append(out, parsedDate{value: v, literal: literal, year: year})
	}
	for _, m := range monthDayRE.FindAllStringSubmatch(lower, -1) {
		prose(m[2], m[1], m[3], m[0])
	}
	for _, m := range dayMonthRE.FindAllStringSubmatch(lower, -1) {
		prose(m[1], m[2], m[3], m[0])
	}

	today := now.Format("2006-01-02")
	if strings.Contains(lower, "tomorrow") {
		out = append(out, parsedDate{value: now.AddDate(0, 0, 1).Format("2006-01-02"), literal: "tomorrow", year: now.AddDate(0, 0, 1).Year()})
	} else if strings.Contains(lower, "today") {
		out = append(out, parsedDate{value: today, literal: "today", year: now.Year()})
	}

	if m := nextWeekdayRE.FindStringSubmatch(lower); len(m) == 2 {
		if wd, ok := weekdaysByName[m[1]]; ok {
			v := nextWeekday(now, wd)
			out = append(out, parsedDate{value: v.Format("2006-01-02"), literal: m[0], year: v.Year()})
		}
	} else if m := bareWeekdayRE.FindStringSubmatch(lower); len(m) == 2 {
		if wd, ok := weekdaysByName[m[1]]; ok {
			v := nextWeekday(now, wd)
			out = append(out, parsedDate{value: v.Format("2006-01-02"), literal: m[0], year: v.Year()})
		}
	}

	return out
}

// nextWeekday resolves a weekday name to its next future occurrence, never
// the current day.
func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return now.AddDate(0, 0, ahead)
}

// findTime extracts the first time phrase from text, normalized to HH:MM.
func findTime(text string) (string, bool) {
	lower := strings.ToLower(text)

	if m := relClockRE.FindStringSubmatch(lower); len(m) == 5 {
		hour, _ := strconv.Atoi(m[3])
		hour = applyMeridiem(hour, m[4])
		minute := 0
		switch {
		case m[1] == "quarter" && m[2] == "past":
			minute = 15
		case m[1] == "half" && m[2] == "past":
			minute = 30
		case m[1] == "quarter" && m[2] == "to":
			minute = 45
			hour--
			if hour < 0 {
				hour = 23
			}
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	if m := clockTimeRE.FindStringSubmatch(lower); len(m) == 4 {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 1 && hour <= 12 {
			hour = applyMeridiem(hour, m[3])
			minute := 0
			if m[2] != "" {
				minute, _ = strconv.Atoi(m[2])
			}
			return fmt.Sprintf("%02d:%02d", hour, minute), true
		}
	}

	if m := hhmmRE.FindStringSubmatch(lower); len(m) == 3 {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	if strings.Contains(lower, "midday") || strings.Contains(lower, "noon") {
		return "12:00", true
	}
	if strings.Contains(lower, "midnight") {
		return "00:00", true
	}

	return "", false
}

func applyMeridiem(hour int, meridiem string) int {
	switch strings.TrimRight(strings.ReplaceAll(meridiem, ".", ""), " ") {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

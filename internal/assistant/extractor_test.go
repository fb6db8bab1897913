package assistant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Saturday 2026-08-29 10:00, so weekday arithmetic is predictable.
var extractNow = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

func extract(t *testing.T, text string) Extraction {
	t.Helper()
	return NewExtractor([]string{"Standard Consultation", "Initial Consultation"}).Extract(text, RoleUser, extractNow)
}

func TestExtract_ContactDetails(t *testing.T) {
	ex := extract(t, "My name is Jane Smith, you can reach me on 0412 345 678 or Jane.Smith@Example.com")
	assert.Equal(t, "Jane Smith", ex.Name)
	assert.Equal(t, "0412345678", ex.Phone)
	assert.Equal(t, "jane.smith@example.com", ex.Email)
}

func TestExtract_NameRejections(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"adjective after i'm", "i'm flexible about the time"},
		{"stopword candidate", "I'm new here, never visited before"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := extract(t, tt.text)
			assert.Empty(t, ex.Name)
			require.NotEmpty(t, ex.Rejections)
			assert.Equal(t, "name", ex.Rejections[0].Field)
		})
	}
}

func TestExtract_PhoneNotConfusedByDates(t *testing.T) {
	ex := extract(t, "Can I come on 2026-09-03? My number is 0498 765 432")
	assert.Equal(t, "0498765432", ex.Phone)
	assert.Equal(t, "2026-09-03", ex.Date)
}

func TestExtract_AppointmentDates(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantDate string
	}{
		{"iso date", "book me for 2026-09-03 please", "2026-09-03"},
		{"tomorrow", "can I come in tomorrow?", "2026-08-30"},
		{"today", "anything free today?", "2026-08-29"},
		{"bare weekday is next occurrence", "do you have anything on thursday", "2026-09-03"},
		{"same weekday rolls a full week", "how about saturday", "2026-09-05"},
		{"next weekday", "what about next monday", "2026-08-31"},
		{"month day", "I'd like September 3rd", "2026-09-03"},
		{"day month", "the 3rd of September works", "2026-09-03"},
		{"passed prose date rolls to next year", "January 5 would suit me", "2027-01-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := extract(t, tt.text)
			assert.Equal(t, tt.wantDate, ex.Date)
			assert.Empty(t, ex.DateOfBirth)
		})
	}
}

func TestExtract_Times(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"around 2:30pm if possible", "14:30"},
		{"9am sharp", "09:00"},
		{"say 14:00", "14:00"},
		{"half past 2pm", "14:30"},
		{"quarter to 5pm", "16:45"},
		{"noon would be ideal", "12:00"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, extract(t, tt.text).Time)
		})
	}
}

func TestExtract_DateOfBirthRouting(t *testing.T) {
	t.Run("birth context claims in-band dates", func(t *testing.T) {
		ex := extract(t, "I was born on 12 March 1985")
		assert.Equal(t, "1985-03-12", ex.DateOfBirth)
		assert.Empty(t, ex.Date)
	})

	t.Run("bare ISO in birth band is a birth date without context words", func(t *testing.T) {
		ex := extract(t, "1992-11-02")
		assert.Equal(t, "1992-11-02", ex.DateOfBirth)
		assert.Empty(t, ex.Date)
	})

	t.Run("bare ISO with recent year is never a birth date", func(t *testing.T) {
		ex := extract(t, "2026-09-03")
		assert.Empty(t, ex.DateOfBirth)
		assert.Equal(t, "2026-09-03", ex.Date)
	})

	t.Run("birth date and appointment date in one message", func(t *testing.T) {
		ex := extract(t, "DOB 1985-03-12, can I come in on 2026-09-03?")
		assert.Equal(t, "1985-03-12", ex.DateOfBirth)
		assert.Equal(t, "2026-09-03", ex.Date)
	})

	t.Run("past non-band date is rejected, not routed to DOB", func(t *testing.T) {
		ex := extract(t, "it was on 2026-01-05")
		assert.Empty(t, ex.DateOfBirth)
		assert.Empty(t, ex.Date)
		require.NotEmpty(t, ex.Rejections)
		assert.Equal(t, "date", ex.Rejections[0].Field)
	})
}

func TestExtract_Service(t *testing.T) {
	ex := extract(t, "I'd like to book an initial consultation")
	assert.Equal(t, "Initial Consultation", ex.Service)

	ex = extract(t, "just a follow-up thanks")
	assert.Equal(t, "follow-up", ex.Service)
}

func TestExtract_OnlyUserMessages(t *testing.T) {
	x := NewExtractor(nil)
	ex := x.Extract("My name is Jane Smith, tomorrow at 9am", RoleAssistant, extractNow)
	assert.True(t, ex.IsEmpty())
}

func TestMergeExtraction_Idempotent(t *testing.T) {
	sess := NewSession("s1", extractNow)
	ex := Extraction{Date: "2026-09-03", Time: "09:30"}

	mergeExtraction(sess, ex, extractNow)
	firstStamp := sess.Entities.PreferredDate.UpdatedAt

	// Re-merging the identical value must not bump the timestamp.
	mergeExtraction(sess, ex, extractNow.Add(5*time.Second))
	assert.Equal(t, firstStamp, sess.Entities.PreferredDate.UpdatedAt)
	assert.Equal(t, "2026-09-03", sess.Entities.PreferredDate.Value)
}

func TestMergeExtraction_EmptyDoesNotClobber(t *testing.T) {
	sess := NewSession("s1", extractNow)
	mergeExtraction(sess, Extraction{Name: "Jane Smith"}, extractNow)
	mergeExtraction(sess, Extraction{Date: "2026-09-03"}, extractNow.Add(time.Minute))

	assert.Equal(t, "Jane Smith", sess.Entities.Name.Value)
	assert.Equal(t, "2026-09-03", sess.Entities.PreferredDate.Value)
}

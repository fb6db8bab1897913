package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckReply_UnsupportedClaims(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		ops   turnOperations
		want  OperationKind
	}{
		{
			name:  "cancel claim with no tool call",
			reply: "Your appointment has been cancelled. See you next time!",
			ops:   turnOperations{},
			want:  OpCancel,
		},
		{
			name:  "cancel claim after failed cancel",
			reply: "Done! I've cancelled your appointment for Thursday.",
			ops:   turnOperations{OpCancel: StatusFailed},
			want:  OpCancel,
		},
		{
			name:  "single-l spelling still caught",
			reply: "That appointment was canceled as requested.",
			ops:   turnOperations{},
			want:  OpCancel,
		},
		{
			name:  "booking claim with no tool call",
			reply: "You're all set for 9:00 AM on Thursday!",
			ops:   turnOperations{},
			want:  OpBooking,
		},
		{
			name:  "booking claim after failure",
			reply: "Your appointment is booked for Thursday at 9:00 AM.",
			ops:   turnOperations{OpBooking: StatusFailed},
			want:  OpBooking,
		},
		{
			name:  "reschedule claim backed by wrong operation",
			reply: "Your appointment has been moved to Friday at 2:00 PM.",
			ops:   turnOperations{OpBooking: StatusSuccess},
			want:  OpReschedule,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, verdict := CheckReply(tt.reply, tt.ops)
			assert.True(t, verdict.Corrected)
			assert.Equal(t, tt.want, verdict.Operation)
			assert.Equal(t, correctiveReplies[tt.want], got)
			assert.NotEqual(t, tt.reply, got)
		})
	}
}

func TestCheckReply_SupportedClaimsPassThrough(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		ops   turnOperations
	}{
		{
			name:  "booking claim backed by success",
			reply: "You're all set! Your appointment is booked for Thursday at 9:00 AM.",
			ops:   turnOperations{OpBooking: StatusSuccess},
		},
		{
			name:  "cancel claim backed by success",
			reply: "I've cancelled your appointment for Thursday. Anything else?",
			ops:   turnOperations{OpCancel: StatusSuccess},
		},
		{
			name:  "reschedule claim backed by success",
			reply: "Your appointment has been rescheduled to Friday at 2:00 PM.",
			ops:   turnOperations{OpReschedule: StatusSuccess},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, verdict := CheckReply(tt.reply, tt.ops)
			assert.False(t, verdict.Corrected)
			assert.Equal(t, tt.reply, got)
		})
	}
}

func TestCheckReply_NeutralRepliesUntouched(t *testing.T) {
	for _, reply := range []string{
		"I have 9:00 AM and 11:30 AM available on Thursday. Would either suit you?",
		"Would you like me to cancel that appointment for you?",
		"I can book you in for Thursday at 9:00 AM. Shall I go ahead?",
		"Booking that now, one moment.",
	} {
		got, verdict := CheckReply(reply, turnOperations{})
		assert.False(t, verdict.Corrected, reply)
		assert.Equal(t, reply, got, reply)
	}
}

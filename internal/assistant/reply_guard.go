package assistant

import (
	"regexp"
)

// successClaims are reply phrasings that assert a mutating operation
// happened. Each claim must be backed by a successful operation of its kind
// in the current turn, or the reply is replaced.
var successClaims = []struct {
	kind OperationKind
	re   *regexp.Regexp
}{
	{OpCancel, regexp.MustCompile(`(?i)\b(has been|is|was|successfully)\s+cancell?ed\b`)},
	{OpCancel, regexp.MustCompile(`(?i)\bcancell?ed\s+(your|the|that)\s+appointment\b`)},
	{OpCancel, regexp.MustCompile(`(?i)\b(i've|i have|we've|we have)\s+cancell?ed\b`)},
	{OpReschedule, regexp.MustCompile(`(?i)\b(has been|is|was|successfully)\s+(rescheduled|moved|changed)\b`)},
	{OpReschedule, regexp.MustCompile(`(?i)\b(i've|i have|we've|we have)\s+(rescheduled|moved)\s+(your|the|that)\b`)},
	{OpBooking, regexp.MustCompile(`(?i)\b(is|has been|successfully)\s+(booked|confirmed|scheduled)\b`)},
	{OpBooking, regexp.MustCompile(`(?i)\b(i've|i have|we've|we have)\s+(booked|scheduled|confirmed)\s+(your|you|the|that|an?)\b`)},
	{OpBooking, regexp.MustCompile(`(?i)\byou('re| are)\s+(all\s+set|booked in)\b`)},
}

var correctiveReplies = map[OperationKind]string{
	OpBooking:    "I'm sorry, I wasn't able to confirm that booking just now. Nothing has been booked yet. Could you confirm the date and time you'd like, and I'll try again?",
	OpCancel:     "I'm sorry, I wasn't able to complete that cancellation just now. Your appointment has not been changed. Could you confirm which appointment you'd like to cancel?",
	OpReschedule: "I'm sorry, I wasn't able to complete that reschedule just now. Your appointment has not been changed. Could you confirm the new date and time you'd like?",
}

// GuardVerdict reports what the integrity guard did with a reply.
type GuardVerdict struct {
	Corrected bool
	Operation OperationKind
	Claimed   OperationKind
}

// turnOperations is the set of mutating operations actually attempted this
// turn, with their final status.
type turnOperations map[OperationKind]OperationStatus

// CheckReply scans the reply for success claims about booking, cancelling,
// or rescheduling. A claim is supported only when the matching tool ran
// this turn and finished with status success. Unsupported claims get the
// corrective reply instead; the model's text is discarded.
func CheckReply(reply string, ops turnOperations) (string, GuardVerdict) {
	for _, claim := range successClaims {
		if !claim.re.MatchString(reply) {
			continue
		}
		status, attempted := ops[claim.kind]
		if attempted && status == StatusSuccess {
			continue
		}
		return correctiveReplies[claim.kind], GuardVerdict{
			Corrected: true,
			Operation: claim.kind,
			Claimed:   claim.kind,
		}
	}
	return reply, GuardVerdict{}
}

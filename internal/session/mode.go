package session

// Mode is the state of the per-connection pipeline FSM.
type Mode string

const (
	// ModeWaitingForWakeup routes audio to the keyword spotter only.
	ModeWaitingForWakeup Mode = "WAITING_FOR_WAKEUP"

	// ModeWaitingForEnrollment accumulates the speaker reference sample.
	ModeWaitingForEnrollment Mode = "WAITING_FOR_ENROLLMENT"

	// ModeWaitingForEnrollmentConfirm holds after enrollment until the
	// client confirms with start_asr. Audio is ignored in this mode.
	ModeWaitingForEnrollmentConfirm Mode = "WAITING_FOR_ENROLLMENT_CONFIRM"

	// ModeASRActive runs the endpointer and finalize pipeline.
	ModeASRActive Mode = "ASR_ACTIVE"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeWaitingForWakeup, ModeWaitingForEnrollment,
		ModeWaitingForEnrollmentConfirm, ModeASRActive:
		return true
	}
	return false
}

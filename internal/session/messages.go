package session

import "time"

// Error codes carried on ErrorReply.
const (
	CodeEmptyMessage     = "EMPTY_MESSAGE"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeMissingAudioData = "MISSING_AUDIO_DATA"
	CodeAudioDecodeError = "AUDIO_DECODE_ERROR"
	CodeSessionCreate    = "SESSION_CREATE_ERROR"
	CodeProcessingError  = "PROCESSING_ERROR"
)

// Internal result sentinels. They never reach the client verbatim; the
// result reply maps them to success=false plus a user-facing message.
const (
	sentinelSVFailed       = "__SV_VERIFICATION_FAILED__"
	sentinelSVNotActivated = "__SV_NOT_ACTIVATED__"
	sentinelEmptyResult    = "__ASR_RESULT_EMPTY__"
)

// userMessage maps a sentinel to the message shown to the client.
func userMessage(sentinel string) string {
	switch sentinel {
	case sentinelSVNotActivated:
		return "非认证注册声音，拒绝访问。"
	default:
		return "抱歉，请再说一遍！"
	}
}

func isSentinel(text string) bool {
	switch text {
	case sentinelSVFailed, sentinelSVNotActivated, sentinelEmptyResult:
		return true
	}
	return false
}

// Reply is a server→client message. The concrete types below marshal
// directly to the wire format.
type Reply interface{ isReply() }

// WelcomeReply is sent once on connect.
type WelcomeReply struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	UseWake   bool   `json:"use_wake"`
	Mode      Mode   `json:"mode"`
}

func (WelcomeReply) isReply() {}

// NewWelcomeReply builds the connect greeting for the session's current
// state.
func NewWelcomeReply(useWake bool, mode Mode) WelcomeReply {
	return WelcomeReply{
		Type:      "welcome",
		Message:   "连接成功，请开始说话",
		Timestamp: time.Now().Format(time.RFC3339),
		UseWake:   useWake,
		Mode:      mode,
	}
}

// WakeupReply is sent when the keyword spotter fires.
type WakeupReply struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (WakeupReply) isReply() {}

// EnrollmentCompletedReply is sent when the reference sample is accepted.
type EnrollmentCompletedReply struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (EnrollmentCompletedReply) isReply() {}

// StatusReply covers asr_started, enrollment_cancelled, and
// conversation_ended.
type StatusReply struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (StatusReply) isReply() {}

// ProcessingReply signals that a finalize pass is running.
type ProcessingReply struct {
	Type             string `json:"type"`
	Status           string `json:"status"`
	IntermediateText string `json:"intermediate_text,omitempty"`
	Message          string `json:"message,omitempty"`
}

func (ProcessingReply) isReply() {}

// ResultReply carries the final recognized text or a gate failure.
type ResultReply struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (ResultReply) isReply() {}

// ErrorReply reports a recoverable per-message error. The session stays
// alive.
type ErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (ErrorReply) isReply() {}

// NewErrorReply builds an error reply with the given code.
func NewErrorReply(code, message string) ErrorReply {
	return ErrorReply{Type: "error", Message: message, Code: code}
}

func newResultReply(text string) ResultReply {
	if isSentinel(text) || text == "" {
		sentinel := text
		if sentinel == "" {
			sentinel = sentinelEmptyResult
		}
		return ResultReply{
			Type:    "result",
			Status:  "completed",
			Text:    "",
			Success: false,
			Message: userMessage(sentinel),
		}
	}
	return ResultReply{Type: "result", Status: "completed", Text: text, Success: true}
}

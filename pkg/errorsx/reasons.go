package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonCaptureStart ReasonCode = "capture_start"
	ReasonCaptureStop  ReasonCode = "capture_stop"

	ReasonSTT          ReasonCode = "stage_stt"
	ReasonSTTConnect   ReasonCode = "stt_connect"
	ReasonSTTRateLimit ReasonCode = "stt_rate_limit"

	ReasonLLM            ReasonCode = "stage_llm"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen ReasonCode = "llm_circuit_open"

	ReasonTTS        ReasonCode = "stage_tts"
	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonPlayback   ReasonCode = "stage_playback"

	ReasonTransportSend           ReasonCode = "transport_send"
	ReasonProtocolViolation       ReasonCode = "protocol_violation"
	ReasonCollaboratorUnavailable ReasonCode = "collaborator_unavailable"
)

package turn

// Stage identifies the pipeline stage a completion or failure refers to.
type Stage int

const (
	StageCapture Stage = iota
	StageSTT
	StageLLM
	StageTTS
	StagePlayback
)

func (s Stage) String() string {
	switch s {
	case StageCapture:
		return "capture"
	case StageSTT:
		return "stt"
	case StageLLM:
		return "llm"
	case StageTTS:
		return "tts"
	case StagePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// FailureText maps a failed stage to the short friendly notice shown on
// the display.
func FailureText(stage Stage) string {
	switch stage {
	case StageCapture:
		return "Sorry, my microphone had a problem. Please try again."
	case StageSTT:
		return "Sorry, I couldn't understand that. Please try again."
	case StageLLM:
		return "Sorry, I'm having trouble processing that right now."
	case StageTTS:
		return "Sorry, I can't speak right now."
	case StagePlayback:
		return "Sorry, my speaker had a problem."
	default:
		return "Sorry, something went wrong."
	}
}

type TriggerKind int

const (
	TriggerStartTurn TriggerKind = iota
	TriggerStopTurn
	TriggerSilenceDetected
	TriggerTranscriptionComplete
	TriggerReplyComplete
	TriggerPlaybackComplete
	TriggerStageFailed
	TriggerAbort
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerStartTurn:
		return "start_turn"
	case TriggerStopTurn:
		return "stop_turn"
	case TriggerSilenceDetected:
		return "silence_detected"
	case TriggerTranscriptionComplete:
		return "transcription_complete"
	case TriggerReplyComplete:
		return "reply_complete"
	case TriggerPlaybackComplete:
		return "playback_complete"
	case TriggerStageFailed:
		return "stage_failed"
	case TriggerAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Trigger is a typed input into Dispatch. Pipeline completions carry the
// ID of the Turn whose call they resolve; the controller discards any
// completion whose Turn is no longer current.
type Trigger struct {
	Kind   TriggerKind
	TurnID string
	Text   string
	Stage  Stage
	Err    error
}

func StartTurn() Trigger        { return Trigger{Kind: TriggerStartTurn} }
func StopTurn() Trigger         { return Trigger{Kind: TriggerStopTurn} }
func SilenceDetected() Trigger  { return Trigger{Kind: TriggerSilenceDetected} }
func Abort() Trigger            { return Trigger{Kind: TriggerAbort} }

func TranscriptionComplete(turnID, transcript string) Trigger {
	return Trigger{Kind: TriggerTranscriptionComplete, TurnID: turnID, Text: transcript}
}

func ReplyComplete(turnID, reply string) Trigger {
	return Trigger{Kind: TriggerReplyComplete, TurnID: turnID, Text: reply}
}

func PlaybackComplete(turnID string) Trigger {
	return Trigger{Kind: TriggerPlaybackComplete, TurnID: turnID}
}

func StageFailed(turnID string, stage Stage, err error) Trigger {
	return Trigger{Kind: TriggerStageFailed, TurnID: turnID, Stage: stage, Err: err}
}

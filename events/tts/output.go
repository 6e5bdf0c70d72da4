package tts

// started and ended events
type TTSSpeakingStartedEvent struct{}

func (e *TTSSpeakingStartedEvent) GetId() string {
	return "tts.speaking_started"
}

type TTSSpeakingEndedEvent struct{}

func (e *TTSSpeakingEndedEvent) GetId() string {
	return "tts.speaking_ended"
}

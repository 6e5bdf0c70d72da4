package stt

import "turnkit/turn"

// STTInterimOutputEvent carries a partial hypothesis that may still change.
type STTInterimOutputEvent struct {
	Text string
}

func (e *STTInterimOutputEvent) GetId() string {
	return "stt.interim_output"
}

// STTFinalOutputEvent carries one finalized transcription segment.
type STTFinalOutputEvent struct {
	Item turn.TranscriptionItem
}

func (e *STTFinalOutputEvent) GetId() string {
	return "stt.final_output"
}

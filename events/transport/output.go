package transport

import "turnkit/utils/audio"

// TransportAudioInputEvent carries one inbound audio chunk from the host's
// capture layer, tagged with its wire encoding.
type TransportAudioInputEvent struct {
	Data     []byte
	Encoding audio.Encoding
}

func (e *TransportAudioInputEvent) GetId() string {
	return "transport.audio_input"
}

// TransportTextInputEvent carries text typed rather than spoken, for hosts
// that mix keyboard input into the same pipeline.
type TransportTextInputEvent struct {
	Text string
}

func (e *TransportTextInputEvent) GetId() string {
	return "transport.text_input"
}

package stt

import (
	"context"

	"turnkit/core"
	sttev "turnkit/events/stt"
	transportev "turnkit/events/transport"
	"turnkit/turn"
	"turnkit/utils/audio"
)

// ISTTService is a streaming transcription engine. Final segments arrive as
// fully stamped TranscriptionItems; interim hypotheses as plain text.
type ISTTService interface {
	core.IService
	StartTranscriptionSession(
		outChan chan<- turn.TranscriptionItem,
		interimOutputChan chan<- string,
		fatalServiceErrorChan chan<- error,
	)
	SendTranscriptionAudio(pcm []byte) error
}

// STTHandler bridges a streaming STT service into the pipeline: inbound
// audio chunks are normalized to PCM16 and fed to the engine, and the
// engine's transcripts come back out as stt events.
type STTHandler struct {
	core.BaseHandler
	itemOutChan    chan turn.TranscriptionItem
	interimOutChan chan string
	config         STTConfig
}

func NewSTTHandler(service ISTTService, backupServices []ISTTService, config STTConfig, logger *core.Logger) *STTHandler {
	typedServices := make([]core.IService, len(backupServices))
	for i, s := range backupServices {
		typedServices[i] = s
	}
	return &STTHandler{
		BaseHandler: *core.NewBaseHandler(service, typedServices, logger),
		config:      config,
	}
}

func (h *STTHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	h.itemOutChan = make(chan turn.TranscriptionItem, 16)
	h.interimOutChan = make(chan string, 16)
	return h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx)
}

func (h *STTHandler) Start() error {
	go h.transcriptLoop()
	go h.eventLoop()
	h.Service.(ISTTService).StartTranscriptionSession(h.itemOutChan, h.interimOutChan, h.FatalServiceErrorChan)
	return nil
}

func (h *STTHandler) eventLoop() {
	for {
		select {
		case input := <-h.InputChan:
			if err := h.HandleEvent(input); err != nil {
				h.HandleError(err)
			}
		case <-h.Ctx.Done():
			return
		}
	}
}

// transcriptLoop relays engine output into the pipeline as stt events.
func (h *STTHandler) transcriptLoop() {
	for {
		select {
		case item := <-h.itemOutChan:
			h.SendPacket(core.NewEventPacket(&sttev.STTFinalOutputEvent{
				Item: item,
			}, core.EventRelayDestinationNextService, "STTHandler"))
		case interim := <-h.interimOutChan:
			h.SendPacket(core.NewEventPacket(&sttev.STTInterimOutputEvent{
				Text: interim,
			}, core.EventRelayDestinationNextService, "STTHandler"))
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *STTHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *transportev.TransportAudioInputEvent:
		pcm, err := audio.ToPCM16(event.Data, event.Encoding)
		if err != nil {
			h.HandleError(err)
			return nil
		}
		go h.Service.(ISTTService).SendTranscriptionAudio(pcm)
	default:
	}
	h.SendPacket(packet)
	return nil
}

func (h *STTHandler) Cleanup() error {
	err := h.BaseHandler.Cleanup()
	close(h.interimOutChan)
	close(h.itemOutChan)
	return err
}

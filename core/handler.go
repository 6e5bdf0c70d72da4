package core

import (
	"context"
	"errors"
)

type IService interface {
	Init(ctx context.Context) error
	Cleanup() error
	Reset() error
}

type IHandler interface {
	Initialize(
		inputChan <-chan *EventPacket,
		outputNextChan chan<- *EventPacket,
		outputTopChan chan<- *EventPacket,
		ctx context.Context,
	) error
	Start() error // Starts the handler's main loop. This is where it begins processing events.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Cleans up resources used by the handler.
	Reset() error   // Resets the handler to its initial state.
}

// BaseHandler carries the plumbing every pipeline handler shares: the wrapped
// service, channels, context, and the fatal-error loop that switches to a
// backup service when the primary dies.
type BaseHandler struct {
	Service               IService
	BackupServices        []IService
	Logger                *Logger
	Ctx                   context.Context
	InputChan             <-chan *EventPacket
	outputNextChan        chan<- *EventPacket
	outputTopChan         chan<- *EventPacket
	FatalServiceErrorChan chan error
}

func NewBaseHandler(service IService, backupServices []IService, logger *Logger) *BaseHandler {
	return &BaseHandler{
		Service:        service,
		BackupServices: backupServices,
		Logger:         logger,
	}
}

func (h *BaseHandler) Initialize(
	inputChan <-chan *EventPacket,
	outputNextChan chan<- *EventPacket,
	outputTopChan chan<- *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = inputChan
	h.outputNextChan = outputNextChan
	h.outputTopChan = outputTopChan
	h.FatalServiceErrorChan = make(chan error, 1)
	h.Ctx = ctx
	go h.fatalErrorHandlerLoop()
	return h.Service.Init(ctx)
}

func (h *BaseHandler) Cleanup() error {
	return h.Service.Cleanup()
}

func (h *BaseHandler) Reset() error {
	return h.Service.Reset()
}

func (h *BaseHandler) SwitchToBackupService() error {
	if len(h.BackupServices) == 0 {
		return errors.New("no backup services available")
	}
	// Switch to the next backup service in the list.
	h.Service = h.BackupServices[0]
	if err := h.Service.Init(h.Ctx); err != nil {
		return err
	}
	h.BackupServices = h.BackupServices[1:]
	return nil
}

func (h *BaseHandler) SendPacket(packet *EventPacket) {
	switch packet.Destination {
	case EventRelayDestinationNextService:
		h.outputNextChan <- packet
	case EventRelayDestinationTopService:
		h.outputTopChan <- packet
	default:
		// Default to sending to the next service if destination is unrecognized.
		h.outputNextChan <- packet
	}
}

func (h *BaseHandler) HandleError(err error) {
	select {
	case h.FatalServiceErrorChan <- err:
	default:
	}
}

func (h *BaseHandler) fatalErrorHandlerLoop() {
	for {
		select {
		case err := <-h.FatalServiceErrorChan:
			h.Logger.With(map[string]any{"error": err}).Error("handler service error")
			if switchErr := h.SwitchToBackupService(); switchErr != nil {
				h.SendPacket(
					NewEventPacket(&CriticalErrorEvent{Error: err.Error()}, EventRelayDestinationTopService, "BaseHandler"),
				)
				return
			}
			h.SendPacket(
				NewEventPacket(&WarningEvent{Error: err.Error()}, EventRelayDestinationTopService, "BaseHandler"),
			)
		case <-h.Ctx.Done():
			return
		}
	}
}

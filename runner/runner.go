package runner

import (
	"context"

	"turnkit/core"
)

// Runner wires an ordered handler chain with channels and pumps events
// through it: each handler's next-output feeds the following handler's
// input, and the shared top channel is drained here.
type Runner struct {
	Handlers       []core.IHandler
	logger         *core.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	topOutputChan  chan *core.EventPacket
	lastOutputChan chan *core.EventPacket
}

func NewRunner(handlers []core.IHandler, logger *core.Logger) *Runner {
	return &Runner{
		Handlers: handlers,
		logger:   logger,
	}
}

func (r *Runner) Start(parent context.Context) error {
	if len(r.Handlers) == 0 {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(parent)
	r.topOutputChan = make(chan *core.EventPacket, 100)
	r.lastOutputChan = make(chan *core.EventPacket, 100)

	// Create channels for each handler's input
	inputChans := make([]chan *core.EventPacket, len(r.Handlers))
	for i := range inputChans {
		inputChans[i] = make(chan *core.EventPacket, 100)
	}

	for i, handler := range r.Handlers {
		var outputNextChan chan<- *core.EventPacket
		if i < len(r.Handlers)-1 {
			outputNextChan = inputChans[i+1]
		} else {
			// Last handler - output goes to our capture channel
			outputNextChan = r.lastOutputChan
		}

		err := handler.Initialize(
			inputChans[i],
			outputNextChan,
			r.topOutputChan,
			r.ctx,
		)
		if err != nil {
			r.cancel()
			return err
		}

		if err := handler.Start(); err != nil {
			r.cancel()
			return err
		}
	}

	go r.listenToOutputs()
	return nil
}

// Inject pushes an externally produced event into the head of the chain.
// Hosts use this to feed audio input and playback lifecycle signals.
func (r *Runner) Inject(packet *core.EventPacket) {
	if len(r.Handlers) == 0 {
		return
	}
	r.Handlers[0].HandleEvent(packet)
}

func (r *Runner) listenToOutputs() {
	for {
		select {
		case packet := <-r.lastOutputChan:
			r.processFinalOutput(packet)
		case packet := <-r.topOutputChan:
			r.processTopOutput(packet)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) processFinalOutput(packet *core.EventPacket) {
	// Events falling off the chain end are observability-only by the time
	// they get here.
	r.logger.With(map[string]any{
		"event":   packet.Event.GetId(),
		"relayer": packet.Relayer,
	}).Debug("runner: event reached end of chain")
}

func (r *Runner) processTopOutput(packet *core.EventPacket) {
	switch event := packet.Event.(type) {
	case *core.CriticalErrorEvent:
		r.logger.With(map[string]any{"error": event.Error}).Error("runner: critical error, stopping pipeline")
		r.cancel()
	case *core.EndSessionEvent:
		r.logger.With(map[string]any{"reason": event.Reason}).Info("runner: session ended")
		r.cancel()
	default:
		// Echo back to the first handler so every stage can observe it.
		// Destination is rewritten or the packet would bounce off the top
		// channel forever.
		echoed := *packet
		echoed.Destination = core.EventRelayDestinationNextService
		r.Handlers[0].HandleEvent(&echoed)
	}
}

func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}

	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (r *Runner) Reset() error {
	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

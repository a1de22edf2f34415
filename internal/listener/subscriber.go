// Package listener subscribes to pool-creation logs and order-book market accounts and feeds
// matches to the discovery pipeline through a bounded queue drained by one worker.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"solana-pool-agent/internal/discovery"
	"solana-pool-agent/internal/observability"
	"solana-pool-agent/internal/solana"
)

// DefaultQueueSize bounds the number of matched notifications waiting for the worker.
const DefaultQueueSize = 1024

// ErrStreamsClosed is returned by Run when every subscription channel closed before cancellation.
var ErrStreamsClosed = errors.New("all subscriptions closed")

// Handler consumes matched notifications.
type Handler interface {
	OnCandidate(ctx context.Context, c discovery.Candidate) error
	OnMarketUpdate(ctx context.Context, u discovery.MarketUpdate) error
}

// Options configures Subscriber.
type Options struct {
	Layouts       *discovery.LayoutTable
	Commitment    solana.Commitment
	QueueSize     int
	WatchMarkets  bool
	MarketProgram string
	Logger        *zerolog.Logger
}

// Subscriber owns the websocket subscriptions and the worker.
type Subscriber struct {
	ws            solana.WSClient
	handler       Handler
	layouts       *discovery.LayoutTable
	commitment    solana.Commitment
	queueSize     int
	watchMarkets  bool
	marketProgram string
	logger        zerolog.Logger
}

// NewSubscriber creates a subscriber.
func NewSubscriber(ws solana.WSClient, handler Handler, opts Options) *Subscriber {
	s := &Subscriber{
		ws:            ws,
		handler:       handler,
		layouts:       opts.Layouts,
		commitment:    opts.Commitment,
		queueSize:     opts.QueueSize,
		watchMarkets:  opts.WatchMarkets,
		marketProgram: opts.MarketProgram,
		logger:        zerolog.Nop(),
	}
	if s.layouts == nil {
		s.layouts = discovery.NewDefaultLayoutTable()
	}
	if s.commitment == "" {
		s.commitment = solana.CommitmentConfirmed
	}
	if s.queueSize <= 0 {
		s.queueSize = DefaultQueueSize
	}
	if s.marketProgram == "" {
		s.marketProgram = discovery.OpenBookProgram
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "listener").Logger()
	}
	return s
}

// job is one queued unit of work: a candidate or a market update.
type job struct {
	candidate *discovery.Candidate
	market    *discovery.MarketUpdate
}

// Run subscribes and processes notifications until ctx is cancelled, then closes the
// websocket client. A subscription failure at startup is returned.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.ws.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan job, s.queueSize)
	var producers sync.WaitGroup

	for program, layouts := range s.programLayouts() {
		ch, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{
			Mentions:   []string{program},
			Commitment: s.commitment,
		})
		if err != nil {
			cancel()
			producers.Wait()
			return fmt.Errorf("subscribe logs %s: %w", program, err)
		}
		s.logger.Info().Str("program", program).Str("commitment", string(s.commitment)).Msg("listening for pool creation")

		producers.Add(1)
		go func() {
			defer producers.Done()
			s.produceLogs(ctx, program, layouts, ch, queue)
		}()
	}

	if s.watchMarkets {
		ch, err := s.ws.SubscribeProgram(ctx, solana.ProgramFilter{
			ProgramID:  s.marketProgram,
			DataSize:   discovery.MarketStateV3Size,
			Commitment: s.commitment,
		})
		if err != nil {
			cancel()
			producers.Wait()
			return fmt.Errorf("subscribe program %s: %w", s.marketProgram, err)
		}
		s.logger.Info().Str("program", s.marketProgram).Msg("listening for market accounts")

		producers.Add(1)
		go func() {
			defer producers.Done()
			s.produceMarkets(ctx, ch, queue)
		}()
	}

	streamsDone := make(chan struct{})
	go func() {
		producers.Wait()
		close(streamsDone)
	}()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.work(ctx, queue)
	}()

	var err error
	select {
	case <-ctx.Done():
	case <-streamsDone:
		err = ErrStreamsClosed
	}
	cancel()
	<-workerDone
	return err
}

// programLayouts groups layouts by program so each program gets one subscription.
func (s *Subscriber) programLayouts() map[string][]discovery.InstructionLayout {
	out := make(map[string][]discovery.InstructionLayout)
	for _, l := range s.layouts.Layouts() {
		out[l.ProgramID] = append(out[l.ProgramID], l)
	}
	return out
}

func (s *Subscriber) produceLogs(ctx context.Context, program string, layouts []discovery.InstructionLayout, ch <-chan solana.LogNotification, queue chan<- job) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-ch:
			if !ok {
				s.logger.Warn().Str("program", program).Msg("log subscription closed")
				return
			}
			observability.UpdateHighestSlot(notif.Slot)
			if notif.Err != nil {
				observability.RecordLogNotification(program, false)
				continue
			}
			layout, ok := matchLayout(notif.Logs, layouts)
			observability.RecordLogNotification(program, ok)
			if !ok {
				continue
			}

			c := &discovery.Candidate{
				Signature:   notif.Signature,
				ProgramID:   program,
				Instruction: layout.Instruction,
				IsAmm:       layout.IsAmm,
				Slot:        notif.Slot,
			}
			if !s.enqueue(ctx, queue, job{candidate: c}) {
				return
			}
		}
	}
}

func (s *Subscriber) produceMarkets(ctx context.Context, ch <-chan solana.AccountNotification, queue chan<- job) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-ch:
			if !ok {
				s.logger.Warn().Str("program", s.marketProgram).Msg("program subscription closed")
				return
			}
			u := &discovery.MarketUpdate{Pubkey: notif.Pubkey, Slot: notif.Slot, Data: notif.Data}
			if !s.enqueue(ctx, queue, job{market: u}) {
				return
			}
		}
	}
}

// enqueue blocks while the queue is full. It returns false once ctx is done.
func (s *Subscriber) enqueue(ctx context.Context, queue chan<- job, j job) bool {
	select {
	case queue <- j:
		observability.UpdateQueueDepth(len(queue))
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscriber) work(ctx context.Context, queue <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-queue:
			observability.UpdateQueueDepth(len(queue))
			s.handle(ctx, j)
		}
	}
}

// handle processes one job. Errors and panics are logged and never stop the worker.
func (s *Subscriber) handle(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordListenerError("panic")
			s.logger.Error().Interface("panic", r).Msg("recovered from handler panic")
		}
	}()

	switch {
	case j.candidate != nil:
		if err := s.handler.OnCandidate(ctx, *j.candidate); err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.RecordListenerError("candidate")
			s.logger.Error().Err(err).
				Str("signature", j.candidate.Signature).
				Str("program", j.candidate.ProgramID).
				Msg("candidate processing failed")
		}
	case j.market != nil:
		if err := s.handler.OnMarketUpdate(ctx, *j.market); err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.RecordListenerError("market")
			s.logger.Warn().Err(err).Str("market", j.market.Pubkey).Msg("market update failed")
		}
	}
}

// matchLayout returns the first layout whose instruction marker appears in a log line.
func matchLayout(logs []string, layouts []discovery.InstructionLayout) (discovery.InstructionLayout, bool) {
	for _, line := range logs {
		for _, l := range layouts {
			if strings.Contains(line, l.Instruction) {
				return l, true
			}
		}
	}
	return discovery.InstructionLayout{}, false
}

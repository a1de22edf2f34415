// Package execution signs routed swap transactions, submits them and waits for finalization.
package execution

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/observability"
	"solana-pool-agent/internal/solana"
)

// Default configuration values.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 60 * time.Second
)

// Swap outcomes reported to metrics.
const (
	OutcomeFinalized = "finalized"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeRejected  = "rejected"
)

// Signer signs a serialized transaction.
type Signer interface {
	SignTransaction(payload []byte) ([]byte, error)
}

// Submitter is the RPC subset needed to send and track a transaction.
type Submitter interface {
	SendTransaction(ctx context.Context, payload []byte, opts solana.SendOptions) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*solana.SignatureStatus, error)
}

// Options configures Executor.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	Logger       *zerolog.Logger
}

// Executor runs one swap transaction to finality.
type Executor struct {
	rpc      Submitter
	signer   Signer
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// NewExecutor creates an executor. Zero options take the defaults.
func NewExecutor(rpc Submitter, signer Signer, opts Options) *Executor {
	e := &Executor{
		rpc:      rpc,
		signer:   signer,
		interval: opts.PollInterval,
		timeout:  opts.Timeout,
		now:      opts.Now,
		sleep:    opts.Sleep,
		logger:   zerolog.Nop(),
	}
	if e.interval <= 0 {
		e.interval = DefaultPollInterval
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With().Str("component", "execution").Logger()
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteSwap signs and submits tx, then reports whether it reached finalized commitment
// before the timeout. Failures are logged, never returned, and never retried.
func (e *Executor) ExecuteSwap(ctx context.Context, tx *domain.SwapTransaction) bool {
	start := e.now()

	if tx == nil || len(tx.Payload) == 0 {
		e.logger.Error().Msg("empty swap transaction")
		observability.RecordSwap(OutcomeRejected, 0)
		return false
	}

	signed, err := e.signer.SignTransaction(tx.Payload)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to sign swap transaction")
		observability.RecordSwap(OutcomeRejected, 0)
		return false
	}

	sig, err := e.rpc.SendTransaction(ctx, signed, solana.SendOptions{
		SkipPreflight:       true,
		PreflightCommitment: solana.CommitmentConfirmed,
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to send swap transaction")
		observability.RecordSwap(OutcomeRejected, 0)
		return false
	}
	e.logger.Info().Str("signature", sig).Msg("swap transaction sent")

	outcome := e.waitForFinalized(ctx, sig)
	observability.RecordSwap(outcome, e.now().Sub(start))

	switch outcome {
	case OutcomeFinalized:
		e.logger.Info().Str("signature", sig).Msg("swap transaction finalized")
		return true
	case OutcomeTimeout:
		e.logger.Error().Str("signature", sig).Dur("timeout", e.timeout).Msg("swap confirmation timed out")
	default:
		e.logger.Error().Str("signature", sig).Msg("swap transaction failed on chain")
	}
	return false
}

// waitForFinalized polls the signature status every interval until finalized, failed or timed out.
// The timeout is a wall-clock bound: it also cuts short a status call that hangs.
func (e *Executor) waitForFinalized(ctx context.Context, sig string) string {
	pollCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := e.now()
	for e.now().Sub(start) < e.timeout {
		statuses, err := e.rpc.GetSignatureStatuses(pollCtx, sig)
		switch {
		case err != nil:
			if pollCtx.Err() != nil {
				return OutcomeTimeout
			}
			e.logger.Warn().Err(err).Str("signature", sig).Msg("signature status poll failed")
		case len(statuses) > 0 && statuses[0] != nil:
			st := statuses[0]
			if st.Err != nil {
				e.logger.Warn().Interface("err", st.Err).Str("signature", sig).Msg("transaction landed with error")
				return OutcomeFailed
			}
			if st.ConfirmationStatus == solana.CommitmentFinalized {
				return OutcomeFinalized
			}
		}

		if err := e.sleep(pollCtx, e.interval); err != nil {
			return OutcomeTimeout
		}
	}
	return OutcomeTimeout
}

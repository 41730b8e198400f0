// Package failover walks the provider preference chain until one candidate
// yields a stream.
//
// Attempts are strictly sequential and the walk is deterministic: first
// success wins, an auth failure abandons the rest of that family, retryable
// failures are retried within the candidate's budget and then failed over.
package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sigmachat/sigma/pkg/logger"
	"github.com/sigmachat/sigma/pkg/provider"
)

// ExhaustedError is returned when no candidate produced a stream.
type ExhaustedError struct {
	Failures []*provider.Failure
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return "no providers configured"
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return "all providers exhausted: " + strings.Join(msgs, "; ")
}

// OnlyQuota reports whether every failure was a quota or rate-limit
// condition. It returns the status of the last one, which is what the caller
// would forward.
func (e *ExhaustedError) OnlyQuota() (status int, ok bool) {
	if len(e.Failures) == 0 {
		return 0, false
	}
	for _, f := range e.Failures {
		if f.Class != provider.QuotaOrRateLimited {
			return 0, false
		}
	}
	return e.Failures[len(e.Failures)-1].StatusCode, true
}

// Orchestrator holds the read-only preference chain.
type Orchestrator struct {
	chain  []provider.Candidate
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator over chain, tried in order.
func New(chain []provider.Candidate, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		chain:  chain,
		logger: logger,
		sleep:  sleep,
	}
}

// Dispatch returns the first successful stream. When every candidate has
// failed it returns an *ExhaustedError. A cancelled ctx stops the walk.
func (o *Orchestrator) Dispatch(ctx context.Context, req *provider.Request) (*provider.Stream, error) {
	var failures []*provider.Failure
	abandoned := make(map[string]bool)

	for _, cand := range o.chain {
		family := cand.Adapter.Family()
		if abandoned[family] {
			o.logger.Debug("skipping candidate of abandoned family",
				zap.String("provider", cand.Adapter.Name()),
			)
			continue
		}

		stream, fails, err := o.try(ctx, cand, req)
		failures = append(failures, fails...)
		if err != nil {
			return nil, err
		}
		if stream != nil {
			return stream, nil
		}

		if last := fails[len(fails)-1]; last.Class == provider.AuthFailure {
			abandoned[family] = true
			o.logger.Warn("abandoning provider family after auth failure",
				zap.String("family", family),
				zap.Int("status", last.StatusCode),
			)
		}
	}

	return nil, &ExhaustedError{Failures: failures}
}

// try runs one candidate within its retry budget. It returns the stream on
// success, the failures seen, and a non-nil error only when ctx ends.
func (o *Orchestrator) try(ctx context.Context, cand provider.Candidate, req *provider.Request) (*provider.Stream, []*provider.Failure, error) {
	var failures []*provider.Failure
	name := cand.Adapter.Name()
	attempts := cand.Retry.Attempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, failures, err
		}

		start := time.Now()
		stream, err := cand.Adapter.Send(ctx, req)
		if err == nil {
			o.logger.Info("provider accepted request",
				zap.String("provider", name),
				zap.Int("attempt", attempt),
				zap.Duration("ttfb", time.Since(start)),
			)
			return stream, failures, nil
		}

		f := asFailure(name, err)
		failures = append(failures, f)
		o.logger.Warn("provider attempt failed",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.String("class", f.Class.String()),
			zap.Int("status", f.StatusCode),
			zap.String("detail", logger.Truncate(f.Detail, 200)),
			zap.Error(f.Err),
		)

		if !f.Class.Retryable() || attempt == attempts {
			break
		}

		delay := cand.Retry.Delay(attempt)
		o.logger.Debug("backing off before retry",
			zap.String("provider", name),
			zap.Duration("delay", delay),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, failures, err
		}
	}

	return nil, failures, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func asFailure(name string, err error) *provider.Failure {
	var f *provider.Failure
	if errors.As(err, &f) {
		return f
	}
	return &provider.Failure{Class: provider.PermanentError, Provider: name, Err: fmt.Errorf("unclassified: %w", err)}
}

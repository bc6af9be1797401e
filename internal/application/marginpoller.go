package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
	"github.com/ericfisherdev/cltsim/internal/platform/metrics"
)

// Fixed polling policy. The platform's margin computation time is roughly
// bounded, so a flat interval is used instead of backoff.
const (
	DefaultPollInterval = 4 * time.Second
	DefaultPollAttempts = 20

	consultSearchLimit = 50
)

// Sleeper waits for d or until ctx is done, returning ctx.Err() in that case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper backed by a timer.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MarginPoller waits for the platform to compute the available margin of a
// consent term. Each attempt waits the interval and then scans the day's
// consult listing for the term.
type MarginPoller struct {
	client   driven.ConsignmentClient
	tokens   *TokenCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	attempts int
	sleep    Sleeper
	now      func() time.Time
}

// NewMarginPoller creates a MarginPoller with the given policy. Non-positive
// interval or attempts fall back to the defaults. m and logger may be nil.
func NewMarginPoller(
	client driven.ConsignmentClient,
	tokens *TokenCache,
	interval time.Duration,
	attempts int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MarginPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MarginPoller{
		client:   client,
		tokens:   tokens,
		metrics:  m,
		logger:   logger,
		interval: interval,
		attempts: attempts,
		sleep:    SleepContext,
		now:      time.Now,
	}
}

// WithSleeper replaces the delay function. Intended for tests.
func (p *MarginPoller) WithSleeper(s Sleeper) *MarginPoller {
	p.sleep = s
	return p
}

// WithClock replaces the time source used to build the search window.
func (p *MarginPoller) WithClock(now func() time.Time) *MarginPoller {
	p.now = now
	return p
}

// AwaitMargin polls until the term is READY, REJECTED or the attempt budget
// is spent. It returns the ready snapshot, a KindRejected error carrying the
// provider description, or a KindTimeout error.
func (p *MarginPoller) AwaitMargin(ctx context.Context, cpf, termID string) (model.MarginSnapshot, error) {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := p.sleep(ctx, p.interval); err != nil {
			return model.MarginSnapshot{}, err
		}

		snapshot, found, err := p.poll(ctx, cpf, termID)
		if err != nil {
			p.metrics.ObserveMarginPoll("error")
			return model.MarginSnapshot{}, upstreamError("await_margin", "consult search failed", err)
		}

		state := model.MarginPending
		if found {
			state = snapshot.Classify()
		}
		p.metrics.ObserveMarginPoll(state.String())

		p.logger.Debug("margin poll",
			"term_id", termID,
			"attempt", attempt,
			"found", found,
			"status", string(snapshot.Status),
			"state", state.String(),
		)

		switch state {
		case model.MarginReady:
			p.metrics.ObserveMarginWait(attempt)
			p.logger.Info("margin ready",
				"term_id", termID,
				"attempts", attempt,
				"available_margin", snapshot.AvailableMargin,
			)
			return snapshot, nil
		case model.MarginRejected:
			p.metrics.ObserveMarginWait(attempt)
			p.logger.Warn("consent term rejected",
				"term_id", termID,
				"status", string(snapshot.Status),
				"description", snapshot.Description,
			)
			return model.MarginSnapshot{}, model.NewError(model.KindRejected, "await_margin",
				"consent term rejected by platform", nil).WithDetail(snapshot.Description)
		}
	}

	p.metrics.ObserveMarginWait(p.attempts)
	p.metrics.ObserveMarginPoll(model.MarginTimedOut.String())
	p.logger.Warn("margin wait timed out", "term_id", termID, "attempts", p.attempts)
	return model.MarginSnapshot{}, model.NewError(model.KindTimeout, "await_margin",
		"margin not ready within polling budget", nil)
}

// poll runs one consult search and scans it for termID.
func (p *MarginPoller) poll(ctx context.Context, cpf, termID string) (model.MarginSnapshot, bool, error) {
	start, end := model.DayWindow(p.now())
	search := model.ConsultSearch{
		DocumentNumber: cpf,
		Start:          start,
		End:            end,
		Limit:          consultSearchLimit,
		Page:           1,
		Provider:       model.Provider,
	}

	var results []model.MarginSnapshot
	err := p.tokens.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		results, err = p.client.SearchConsults(ctx, token, search)
		return err
	})
	if err != nil {
		return model.MarginSnapshot{}, false, err
	}

	for _, s := range results {
		if s.TermID == termID {
			return s, true, nil
		}
	}
	return model.MarginSnapshot{}, false, nil
}

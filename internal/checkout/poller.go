package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sokofresh/mpesa-checkout/internal"
)

const (
	DefaultPollInterval  = 3 * time.Second
	DefaultRedirectDelay = 3 * time.Second
)

// GatewayAPI is the slice of the gateway client the poller needs.
type GatewayAPI interface {
	Status(ctx context.Context, paymentID string) (*StatusResult, error)
}

// Transition is an observed status change, emitted exactly once per
// change.
type Transition struct {
	From            Status
	To              Status
	TransactionCode string
}

type PollerConfig struct {
	Interval      time.Duration
	RedirectDelay time.Duration
}

// Poller drives a session by querying the gateway at a fixed interval.
// One in-flight query at a time: the next tick is only scheduled after
// the previous call completed or failed. Gateway errors are logged and
// polling continues; polling stops on a terminal status or Close.
type Poller struct {
	session       *Session
	gateway       GatewayAPI
	interval      time.Duration
	redirectDelay time.Duration
	logger        *slog.Logger

	onTransition func(Transition)
	onRedirect   func()

	mu            sync.Mutex
	running       bool
	closed        bool
	stop          chan struct{}
	done          chan struct{}
	redirectTimer *time.Timer
}

func NewPoller(session *Session, gateway GatewayAPI, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = DefaultRedirectDelay
	}
	return &Poller{
		session:       session,
		gateway:       gateway,
		interval:      cfg.Interval,
		redirectDelay: cfg.RedirectDelay,
		logger:        logger,
	}
}

// OnTransition registers the status change callback. Must be called
// before StartIfNeeded.
func (p *Poller) OnTransition(fn func(Transition)) {
	p.onTransition = fn
}

// OnRedirect registers the callback fired once, redirectDelay after a
// success transition. Must be called before StartIfNeeded.
func (p *Poller) OnRedirect(fn func()) {
	p.onRedirect = fn
}

// StartIfNeeded starts the polling loop when the session is in a
// pollable state and no loop is already running. Reports whether a
// loop was started.
func (p *Poller) StartIfNeeded() bool {
	snap := p.session.Snapshot()
	if !snap.Status.Pollable() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.closed {
		return false
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.loop(snap.PaymentID, snap.Status)
	return true
}

// Done reports loop completion: closed when polling stopped, either on
// a terminal status or via Close. Nil before the first start.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Close stops the polling loop and cancels any scheduled redirect.
// Safe to call more than once.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.running {
		close(p.stop)
	}
	if p.redirectTimer != nil {
		p.redirectTimer.Stop()
		p.redirectTimer = nil
	}
}

func (p *Poller) loop(paymentID string, lastKnown Status) {
	defer func() {
		p.mu.Lock()
		p.running = false
		done := p.done
		p.mu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-timer.C:
		}

		next, terminal := p.tick(paymentID, lastKnown)
		lastKnown = next
		if terminal {
			return
		}

		timer.Reset(p.interval)
	}
}

// tick performs one status query. Returns the status to compare the
// next poll against and whether polling should stop.
func (p *Poller) tick(paymentID string, lastKnown Status) (Status, bool) {
	ctx, cancel := internal.WithTimeout(context.Background(), p.interval*2)
	defer cancel()

	result, err := p.gateway.Status(ctx, paymentID)
	if err != nil {
		// Transient by assumption; keep the last known status and
		// try again on the next tick.
		p.logger.Warn("status poll failed, retrying",
			"payment_id", paymentID,
			"error", err,
		)
		return lastKnown, false
	}

	if result.Status == lastKnown {
		return lastKnown, false
	}

	// A Close that raced the in-flight query supersedes the session;
	// its result must not be applied or emitted.
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return lastKnown, true
	}

	p.session.applyPoll(result.Status, result.TransactionCode)
	if p.onTransition != nil {
		p.onTransition(Transition{
			From:            lastKnown,
			To:              result.Status,
			TransactionCode: result.TransactionCode,
		})
	}

	if result.Status == StatusSuccess {
		p.scheduleRedirect()
	}
	return result.Status, result.Status.Terminal()
}

func (p *Poller) scheduleRedirect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.onRedirect == nil {
		return
	}
	p.redirectTimer = time.AfterFunc(p.redirectDelay, p.onRedirect)
}

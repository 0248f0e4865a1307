package checkout_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokofresh/mpesa-checkout/internal/checkout"
)

const (
	testInterval = 5 * time.Millisecond
	testTimeout  = 2 * time.Second
)

type statusStep struct {
	status checkout.Status
	code   string
	err    error
}

// scriptedGateway returns its steps in order; the last step repeats
// once the script is exhausted.
type scriptedGateway struct {
	mu    sync.Mutex
	steps []statusStep
	calls int
}

func (g *scriptedGateway) Status(_ context.Context, paymentID string) (*checkout.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.calls
	g.calls++
	if idx >= len(g.steps) {
		idx = len(g.steps) - 1
	}

	step := g.steps[idx]
	if step.err != nil {
		return nil, step.err
	}
	return &checkout.StatusResult{
		PaymentID:       paymentID,
		Status:          step.status,
		TransactionCode: step.code,
	}, nil
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type transitionRecorder struct {
	mu          sync.Mutex
	transitions []checkout.Transition
}

func (r *transitionRecorder) record(t checkout.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *transitionRecorder) all() []checkout.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]checkout.Transition(nil), r.transitions...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func initiatedSession(t *testing.T) *checkout.Session {
	t.Helper()
	session := checkout.NewSession()
	require.NoError(t, session.Begin("pay-123", "254712345678", 500))
	return session
}

func waitDone(t *testing.T, poller *checkout.Poller) {
	t.Helper()
	select {
	case <-poller.Done():
	case <-time.After(testTimeout):
		t.Fatal("poller did not stop in time")
	}
}

func TestStartIfNeededRequiresPollableSession(t *testing.T) {
	gateway := &scriptedGateway{steps: []statusStep{{status: checkout.StatusPending}}}
	session := checkout.NewSession()

	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval}, testLogger())
	defer poller.Close()

	assert.False(t, poller.StartIfNeeded(), "idle session must not start polling")
	assert.Zero(t, gateway.callCount())

	require.NoError(t, session.Begin("pay-123", "254712345678", 500))
	assert.True(t, poller.StartIfNeeded())
	assert.False(t, poller.StartIfNeeded(), "second start while running must be a no-op")
}

func TestPollerEmitsOneTransitionPerChange(t *testing.T) {
	gateway := &scriptedGateway{steps: []statusStep{
		{status: checkout.StatusPending},
		{status: checkout.StatusPending},
		{status: checkout.StatusPending},
		{status: checkout.StatusSuccess, code: "NLJ7RT61SV"},
	}}
	session := initiatedSession(t)
	recorder := &transitionRecorder{}

	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval}, testLogger())
	defer poller.Close()
	poller.OnTransition(recorder.record)

	require.True(t, poller.StartIfNeeded())
	waitDone(t, poller)

	transitions := recorder.all()
	require.Len(t, transitions, 2, "repeated pending polls must not re-emit")
	assert.Equal(t, checkout.StatusInitiated, transitions[0].From)
	assert.Equal(t, checkout.StatusPending, transitions[0].To)
	assert.Equal(t, checkout.StatusPending, transitions[1].From)
	assert.Equal(t, checkout.StatusSuccess, transitions[1].To)
	assert.Equal(t, "NLJ7RT61SV", transitions[1].TransactionCode)

	snap := session.Snapshot()
	assert.Equal(t, checkout.StatusSuccess, snap.Status)
	assert.Equal(t, "NLJ7RT61SV", snap.TransactionCode)
}

func TestPollerContinuesAfterGatewayError(t *testing.T) {
	gateway := &scriptedGateway{steps: []statusStep{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{status: checkout.StatusSuccess, code: "NLJ7RT61SV"},
	}}
	session := initiatedSession(t)
	recorder := &transitionRecorder{}

	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval}, testLogger())
	defer poller.Close()
	poller.OnTransition(recorder.record)

	require.True(t, poller.StartIfNeeded())
	waitDone(t, poller)

	assert.GreaterOrEqual(t, gateway.callCount(), 3, "errors must not stop the loop")

	transitions := recorder.all()
	require.Len(t, transitions, 1, "errors must not emit transitions")
	assert.Equal(t, checkout.StatusInitiated, transitions[0].From)
	assert.Equal(t, checkout.StatusSuccess, transitions[0].To)
}

func TestPollerStopsOnFailure(t *testing.T) {
	gateway := &scriptedGateway{steps: []statusStep{{status: checkout.StatusFailed}}}
	session := initiatedSession(t)

	redirected := make(chan struct{})
	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval, RedirectDelay: testInterval}, testLogger())
	defer poller.Close()
	poller.OnRedirect(func() { close(redirected) })

	require.True(t, poller.StartIfNeeded())
	waitDone(t, poller)

	callsAtStop := gateway.callCount()
	time.Sleep(5 * testInterval)
	assert.Equal(t, callsAtStop, gateway.callCount(), "no polls after a terminal status")

	select {
	case <-redirected:
		t.Fatal("redirect must not fire on failure")
	case <-time.After(5 * testInterval):
	}

	assert.Equal(t, checkout.StatusFailed, session.Status())
}

func TestRedirectFiresAfterDelayOnSuccess(t *testing.T) {
	gateway := &scriptedGateway{steps: []statusStep{{status: checkout.StatusSuccess, code: "NLJ7RT61SV"}}}
	session := initiatedSession(t)

	redirectDelay := 50 * time.Millisecond
	redirected := make(chan time.Time, 1)

	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval, RedirectDelay: redirectDelay}, testLogger())
	defer poller.Close()
	poller.OnRedirect(func() { redirected <- time.Now() })

	require.True(t, poller.StartIfNeeded())
	waitDone(t, poller)
	stoppedAt := time.Now()

	select {
	case firedAt := <-redirected:
		elapsed := firedAt.Sub(stoppedAt)
		assert.GreaterOrEqual(t, elapsed, redirectDelay-10*time.Millisecond, "redirect fired too early")
	case <-time.After(testTimeout):
		t.Fatal("redirect never fired")
	}
}

func TestCloseCancelsScheduledRedirect(t *testing.T) {
	gateway := &scriptedGateway{steps: []statusStep{{status: checkout.StatusSuccess, code: "NLJ7RT61SV"}}}
	session := initiatedSession(t)

	redirected := make(chan struct{})
	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval, RedirectDelay: 200 * time.Millisecond}, testLogger())
	poller.OnRedirect(func() { close(redirected) })

	require.True(t, poller.StartIfNeeded())
	waitDone(t, poller)

	poller.Close()

	select {
	case <-redirected:
		t.Fatal("redirect fired after Close")
	case <-time.After(300 * time.Millisecond):
	}
}

// blockingGateway parks every Status call until released, so tests can
// interleave teardown with an in-flight query.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
	result  checkout.StatusResult
}

func (g *blockingGateway) Status(_ context.Context, paymentID string) (*checkout.StatusResult, error) {
	g.entered <- struct{}{}
	<-g.release
	res := g.result
	res.PaymentID = paymentID
	return &res, nil
}

func TestCloseDuringInFlightPollDropsResult(t *testing.T) {
	gateway := &blockingGateway{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		result:  checkout.StatusResult{Status: checkout.StatusSuccess, TransactionCode: "NLJ7RT61SV"},
	}
	session := initiatedSession(t)
	recorder := &transitionRecorder{}

	redirected := make(chan struct{})
	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval, RedirectDelay: testInterval}, testLogger())
	poller.OnTransition(recorder.record)
	poller.OnRedirect(func() { close(redirected) })

	require.True(t, poller.StartIfNeeded())

	select {
	case <-gateway.entered:
	case <-time.After(testTimeout):
		t.Fatal("gateway was never called")
	}

	poller.Close()
	close(gateway.release)
	waitDone(t, poller)

	assert.Equal(t, checkout.StatusInitiated, session.Status(), "session must not change after Close")
	assert.Empty(t, recorder.all(), "no transitions after Close")

	select {
	case <-redirected:
		t.Fatal("redirect fired after Close")
	case <-time.After(5 * testInterval):
	}
}

func TestCloseStopsPolling(t *testing.T) {
	gateway := &scriptedGateway{steps: []statusStep{{status: checkout.StatusPending}}}
	session := initiatedSession(t)

	poller := checkout.NewPoller(session, gateway, checkout.PollerConfig{Interval: testInterval}, testLogger())
	require.True(t, poller.StartIfNeeded())

	// Let a few polls happen, then tear down mid-flight.
	time.Sleep(5 * testInterval)
	poller.Close()
	waitDone(t, poller)

	calls := gateway.callCount()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, gateway.callCount())
}

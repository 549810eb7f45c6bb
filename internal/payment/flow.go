package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/slots"
)

var (
	ErrPaymentUsed    = errors.New("payment already used")
	ErrPaymentTimeout = errors.New("payment not confirmed in time")
	ErrBusy           = errors.New("payment already in progress")
	ErrInitiate       = errors.New("initiate payment")
)

// State of an unlock attempt
type State int

const (
	Idle State = iota
	Requested
	Polling
	Verified
	AlreadyUsed
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Polling:
		return "polling"
	case Verified:
		return "verified"
	case AlreadyUsed:
		return "already_used"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the attempt is over
func (s State) Terminal() bool {
	return s >= Verified
}

// Provider creates and verifies payments
type Provider interface {
	InitiatePayment(ctx context.Context) (*provider.PaymentRequest, error)
	VerifyPayment(ctx context.Context, paymentID, claimToken string) (*provider.PaymentStatus, error)
}

// Unlocker grants slots for a confirmed payment
type Unlocker interface {
	Unlock(ctx context.Context, amount int) (slots.State, error)
	SlotsPerPayment() int
}

// Request is one payment the user was asked to make
type Request struct {
	provider.PaymentRequest

	consumed atomic.Bool
}

// Consumed reports whether slots were already granted for this request
func (r *Request) Consumed() bool {
	return r.consumed.Load()
}

// Options configures polling
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// ObserverFunc receives every state transition
type ObserverFunc func(state State, req *Request)

// Flow walks one user through paying for more slots
type Flow struct {
	provider Provider
	slots    Unlocker
	opts     Options
	log      *slog.Logger
	observer ObserverFunc

	mu    sync.Mutex
	state State
}

// NewFlow creates an idle flow
func NewFlow(p Provider, u Unlocker, opts Options, log *slog.Logger) *Flow {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 180
	}
	return &Flow{
		provider: p,
		slots:    u,
		opts:     opts,
		log:      log,
	}
}

// OnState sets the transition observer. Call before Run.
func (f *Flow) OnState(fn ObserverFunc) {
	f.observer = fn
}

// State returns the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State, req *Request) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()

	if f.observer != nil {
		f.observer(s, req)
	}
}

// Request asks the provider for a payment address and amount. On failure
// Failed is reported and the flow goes back to Idle.
func (f *Flow) Request(ctx context.Context) (*Request, error) {
	f.mu.Lock()
	if f.state == Requested || f.state == Polling {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	f.state = Requested
	f.mu.Unlock()
	if f.observer != nil {
		f.observer(Requested, nil)
	}

	pr, err := f.provider.InitiatePayment(ctx)
	if err != nil {
		f.log.Error("initiate payment", "error", err)
		f.setState(Failed, nil)
		f.setState(Idle, nil)
		return nil, fmt.Errorf("%w: %w", ErrInitiate, err)
	}

	f.log.Info("payment requested",
		"payment_id", pr.PaymentID,
		"amount", pr.Amount,
		"address", pr.Address,
	)

	return &Request{PaymentRequest: *pr}, nil
}

// Await polls the provider until the payment is verified, the attempts run
// out or ctx is cancelled. Transport errors are retried on the next tick.
func (f *Flow) Await(ctx context.Context, req *Request) (slots.State, error) {
	f.setState(Polling, req)

	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			f.log.Info("payment polling cancelled", "payment_id", req.PaymentID, "attempt", attempt)
			f.setState(Idle, req)
			return slots.State{}, ctx.Err()
		case <-ticker.C:
		}

		status, err := f.provider.VerifyPayment(ctx, req.PaymentID, req.ClaimToken)
		if err != nil {
			f.log.Warn("verify payment", "payment_id", req.PaymentID, "attempt", attempt, "error", err)
			continue
		}

		done, st, err := f.Observe(ctx, req, status)
		if done {
			return st, err
		}
	}

	f.log.Info("payment timed out", "payment_id", req.PaymentID, "attempts", f.opts.MaxAttempts)
	f.setState(TimedOut, req)
	return slots.State{}, ErrPaymentTimeout
}

// Observe applies one verification result. Slots are granted at most once
// per request no matter how many verified results arrive.
func (f *Flow) Observe(ctx context.Context, req *Request, status *provider.PaymentStatus) (bool, slots.State, error) {
	if !status.Verified {
		return false, slots.State{}, nil
	}
	if req.consumed.Load() {
		return true, slots.State{}, nil
	}
	if status.Used {
		f.log.Warn("payment already used", "payment_id", req.PaymentID)
		f.setState(AlreadyUsed, req)
		return true, slots.State{}, ErrPaymentUsed
	}
	if !req.consumed.CompareAndSwap(false, true) {
		return true, slots.State{}, nil
	}

	st, err := f.slots.Unlock(ctx, f.slots.SlotsPerPayment())
	if err != nil {
		// the payment is spent, so the attempt cannot be retried
		f.log.Error("unlock slots", "payment_id", req.PaymentID, "error", err)
		f.setState(Failed, req)
		return true, slots.State{}, fmt.Errorf("unlock slots: %w", err)
	}

	f.log.Info("payment verified",
		"payment_id", req.PaymentID,
		"unlocked", st.UnlockedSlots,
	)
	f.setState(Verified, req)
	return true, st, nil
}

// Run requests a payment and waits for it. show is called with the request
// before polling starts so the user can be told where to pay.
func (f *Flow) Run(ctx context.Context, show func(*Request)) (slots.State, error) {
	req, err := f.Request(ctx)
	if err != nil {
		return slots.State{}, err
	}
	if show != nil {
		show(req)
	}
	return f.Await(ctx, req)
}

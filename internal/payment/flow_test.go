package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/slots"
	"github.com/suspectuso/ada-tracker/internal/storage"
)

type fakeProvider struct {
	mu        sync.Mutex
	initErr   error
	statuses  []provider.PaymentStatus // returned in order, last one repeats
	verifyErr error
	polls     int
	claims    []string
}

func (f *fakeProvider) InitiatePayment(ctx context.Context) (*provider.PaymentRequest, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &provider.PaymentRequest{PaymentID: "pay-1", Amount: 10_123_456, Address: "addr1service", ClaimToken: "claim-1"}, nil
}

func (f *fakeProvider) VerifyPayment(ctx context.Context, paymentID, claimToken string) (*provider.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	f.claims = append(f.claims, claimToken)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if len(f.statuses) == 0 {
		return &provider.PaymentStatus{}, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &s, nil
}

func (f *fakeProvider) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type countingUnlocker struct {
	mu      sync.Mutex
	calls   int
	slots   int
	err     error
	perGift int
}

func (u *countingUnlocker) Unlock(ctx context.Context, amount int) (slots.State, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return slots.State{}, u.err
	}
	u.slots += amount
	return slots.State{UnlockedSlots: u.slots, MaxSlots: 100}, nil
}

func (u *countingUnlocker) SlotsPerPayment() int { return u.perGift }

func newFlow(p Provider, u Unlocker) *Flow {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFlow(p, u, Options{PollInterval: time.Millisecond, MaxAttempts: 180}, log)
}

func TestTimeoutLeavesSlotsUnchanged(t *testing.T) {
	p := &fakeProvider{}
	u := &countingUnlocker{slots: 6, perGift: 6}
	f := newFlow(p, u)

	_, err := f.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPaymentTimeout)
	assert.Equal(t, TimedOut, f.State())
	assert.Equal(t, 180, p.pollCount())
	assert.Equal(t, 0, u.calls)
	assert.Equal(t, 6, u.slots)
}

func TestVerifiedUnlocksOnce(t *testing.T) {
	p := &fakeProvider{statuses: []provider.PaymentStatus{{Verified: true}}}
	u := &countingUnlocker{slots: 6, perGift: 6}
	f := newFlow(p, u)

	var states []State
	f.OnState(func(s State, req *Request) { states = append(states, s) })

	var shown *Request
	st, err := f.Run(context.Background(), func(r *Request) { shown = r })
	require.NoError(t, err)
	require.NotNil(t, shown)
	assert.Equal(t, "pay-1", shown.PaymentID)
	assert.Equal(t, 12, st.UnlockedSlots)
	assert.Equal(t, 1, p.pollCount())
	assert.Equal(t, []State{Requested, Polling, Verified}, states)
	assert.True(t, shown.Consumed())
	assert.Equal(t, []string{"claim-1"}, p.claims)

	// repeated verified observations, including the server flipping to used
	for _, status := range []provider.PaymentStatus{{Verified: true}, {Verified: true, Used: true}} {
		done, _, err := f.Observe(context.Background(), shown, &status)
		assert.True(t, done)
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, u.calls)
	assert.Equal(t, Verified, f.State())
}

func TestConcurrentObservationsUnlockOnce(t *testing.T) {
	u := &countingUnlocker{perGift: 6}
	f := newFlow(&fakeProvider{}, u)
	req := &Request{PaymentRequest: provider.PaymentRequest{PaymentID: "pay-1"}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Observe(context.Background(), req, &provider.PaymentStatus{Verified: true})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, u.calls)
}

func TestAlreadyUsed(t *testing.T) {
	p := &fakeProvider{statuses: []provider.PaymentStatus{{}, {}, {Verified: true, Used: true}}}
	u := &countingUnlocker{perGift: 6}
	f := newFlow(p, u)

	_, err := f.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPaymentUsed)
	assert.Equal(t, AlreadyUsed, f.State())
	assert.Equal(t, 3, p.pollCount())
	assert.Equal(t, 0, u.calls)
}

func TestTransportErrorsAreRetried(t *testing.T) {
	p := &fakeProvider{verifyErr: errors.New("connection reset")}
	u := &countingUnlocker{perGift: 6}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewFlow(p, u, Options{PollInterval: time.Millisecond, MaxAttempts: 5}, log)

	_, err := f.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPaymentTimeout)
	assert.Equal(t, 5, p.pollCount())
}

func TestRequestFailureReturnsToIdle(t *testing.T) {
	p := &fakeProvider{initErr: &provider.APIError{StatusCode: 502, Body: "bad gateway"}}
	f := newFlow(p, &countingUnlocker{perGift: 6})

	var states []State
	f.OnState(func(s State, req *Request) { states = append(states, s) })

	_, err := f.Request(context.Background())
	assert.ErrorIs(t, err, ErrInitiate)
	var apiErr *provider.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.StatusCode)
	assert.Equal(t, []State{Requested, Failed, Idle}, states)
	assert.Equal(t, Idle, f.State())
}

func TestCancelStopsPolling(t *testing.T) {
	p := &fakeProvider{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewFlow(p, &countingUnlocker{perGift: 6}, Options{PollInterval: 10 * time.Millisecond, MaxAttempts: 1000}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Run(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Idle, f.State())
	assert.Less(t, p.pollCount(), 1000)
}

func TestBusy(t *testing.T) {
	p := &fakeProvider{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewFlow(p, &countingUnlocker{perGift: 6}, Options{PollInterval: time.Hour, MaxAttempts: 1}, log)

	req, err := f.Request(context.Background())
	require.NoError(t, err)

	_, err = f.Request(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Await(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.Request(context.Background())
	assert.NoError(t, err)
}

func TestUnlockFailureIsTerminal(t *testing.T) {
	p := &fakeProvider{statuses: []provider.PaymentStatus{{Verified: true}}}
	u := &countingUnlocker{perGift: 6, err: storage.ErrQuotaExceeded}
	f := newFlow(p, u)

	_, err := f.Run(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.Equal(t, Failed, f.State())
	assert.Equal(t, 1, u.calls)
}

func TestFlowWithSlotManager(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	mgr, err := slots.NewManager(ctx, store, slots.Options{FreeSlots: 6, SlotsPerPayment: 6, MaxTotalSlots: 100}, log)
	require.NoError(t, err)

	p := &fakeProvider{statuses: []provider.PaymentStatus{{}, {Verified: true}}}
	f := NewFlow(p, mgr, Options{PollInterval: time.Millisecond, MaxAttempts: 10}, log)

	st, err := f.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, st.UnlockedSlots)

	c, err := mgr.Capacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, c)
}

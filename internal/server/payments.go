package server

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/suspectuso/ada-tracker/internal/blockfrost"
	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/storage"
)

// suffixRange keeps the unique part of an amount below 1 ADA
const suffixRange = 1_000_000

const maxCreateAttempts = 10

func randomSuffix() int64 {
	return rand.Int63n(suffixRange)
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.createPayment(r.Context())
	if err != nil {
		s.log.Error("create payment", "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not create payment")
		return
	}

	writeJSON(w, http.StatusOK, provider.PaymentRequest{
		PaymentID:  p.ID,
		Amount:     p.Amount,
		Address:    p.Address,
		ClaimToken: p.ClaimToken,
	})
}

// createPayment stores a payment whose amount no other pending payment
// expects, so an incoming transfer identifies it.
func (s *Server) createPayment(ctx context.Context) (*storage.Payment, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		p := &storage.Payment{
			ID:        uuid.NewString(),
			Amount:    s.opts.PriceLovelace + s.suffix(),
			Address:    s.opts.ServiceAddress,
			CreatedAt:  s.now(),
			ClaimToken: uuid.NewString(),
		}

		err := s.ledger.CreatePayment(ctx, p)
		if errors.Is(err, storage.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.log.Info("payment created", "payment_id", p.ID, "amount", p.Amount)
		return p, nil
	}
	return nil, storage.ErrAlreadyExists
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["paymentId"]

	p, err := s.ledger.GetPayment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		s.log.Error("get payment", "payment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}

	if !p.Verified() {
		ok, err := s.verify(ctx, p)
		if err != nil {
			s.log.Warn("verify payment", "payment_id", id, "error", err)
			writeError(w, http.StatusBadGateway, "upstream unavailable")
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, provider.PaymentStatus{})
			return
		}
	}

	// the first caller to see the payment verified gets to use it, and the
	// initiator keeps getting it while it presents the claim token
	granted, err := s.ledger.ConsumePayment(ctx, id, r.URL.Query().Get("claim"))
	if err != nil {
		s.log.Error("consume payment", "payment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	if granted {
		s.log.Info("payment consumed", "payment_id", id, "was_used", p.Used)
	}

	writeJSON(w, http.StatusOK, provider.PaymentStatus{Verified: true, Used: !granted})
}

// verify scans recent transactions to the service address for an output of
// exactly the expected amount made after the payment was created.
func (s *Server) verify(ctx context.Context, p *storage.Payment) (bool, error) {
	s.verifyMu.Lock()
	defer s.verifyMu.Unlock()

	txs, err := s.upstream.GetAddressTransactions(ctx, p.Address, s.opts.ScanDepth)
	if errors.Is(err, blockfrost.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	notBefore := p.CreatedAt.Truncate(time.Second)
	for _, tx := range txs {
		// newest first
		if time.Unix(tx.BlockTime, 0).Before(notBefore) {
			break
		}

		utxos, err := s.upstream.GetTxUTXOs(ctx, tx.TxHash)
		if err != nil {
			return false, err
		}
		if !pays(utxos.Outputs, p.Address, p.Amount) {
			continue
		}

		err = s.ledger.MarkPaymentVerified(ctx, p.ID, tx.TxHash, s.now())
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			// this transaction already paid for another payment
			continue
		case errors.Is(err, storage.ErrNotFound):
			// verified by a concurrent request
			return true, nil
		case err != nil:
			return false, err
		}

		s.log.Info("payment verified", "payment_id", p.ID, "tx_hash", tx.TxHash)
		return true, nil
	}
	return false, nil
}

func pays(outputs []blockfrost.TxOutput, address string, amount int64) bool {
	for _, out := range outputs {
		if out.Address != address {
			continue
		}
		for _, am := range out.Amount {
			if am.Unit != "lovelace" {
				continue
			}
			q, err := strconv.ParseInt(am.Quantity, 10, 64)
			if err == nil && q == amount {
				return true
			}
		}
	}
	return false
}

// SweepLoop drops pending payments older than the payment TTL
func (s *Server) SweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("sweep payments", "error", err)
			}
		}
	}
}

// Sweep drops pending payments older than the payment TTL once
func (s *Server) Sweep(ctx context.Context) (int64, error) {
	n, err := s.ledger.SweepPendingPayments(ctx, s.now().Add(-s.opts.PaymentTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired payments swept", "count", n)
	}
	return n, nil
}

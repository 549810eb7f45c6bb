package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/suspectuso/ada-tracker/internal/blockfrost"
	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/storage"
)

// Upstream is the chain indexer the companion server reads from
type Upstream interface {
	GetAddress(ctx context.Context, address string) (*blockfrost.Address, error)
	GetAsset(ctx context.Context, unit string) (*blockfrost.Asset, error)
	GetAddressTransactions(ctx context.Context, address string, count int) ([]blockfrost.AddressTransaction, error)
	GetTxUTXOs(ctx context.Context, hash string) (*blockfrost.TxUTXOs, error)
}

// Ledger stores slot payments
type Ledger interface {
	CreatePayment(ctx context.Context, p *storage.Payment) error
	GetPayment(ctx context.Context, id string) (*storage.Payment, error)
	MarkPaymentVerified(ctx context.Context, id, txHash string, at time.Time) error
	ConsumePayment(ctx context.Context, id, claimToken string) (bool, error)
	SweepPendingPayments(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options configures the companion server
type Options struct {
	ServiceAddress string
	PriceLovelace  int64
	PaymentTTL     time.Duration
	CacheTTL       time.Duration
	CacheSize      int
	// how many recent service address transactions a verification scans
	ScanDepth int
}

// Server serves wallet data and slot payments to trackers
type Server struct {
	upstream Upstream
	ledger   Ledger
	opts     Options
	log      *slog.Logger

	wallets *expirable.LRU[string, *provider.WalletResponse]
	assets  *expirable.LRU[string, *blockfrost.Asset]

	now    func() time.Time
	suffix func() int64

	// one verification scan at a time
	verifyMu sync.Mutex

	server *http.Server
}

// New creates a companion server
func New(upstream Upstream, ledger Ledger, opts Options, log *slog.Logger) *Server {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.ScanDepth <= 0 {
		opts.ScanDepth = 50
	}

	return &Server{
		upstream: upstream,
		ledger:   ledger,
		opts:     opts,
		log:      log,
		wallets:  expirable.NewLRU[string, *provider.WalletResponse](opts.CacheSize, nil, opts.CacheTTL),
		assets:   expirable.NewLRU[string, *blockfrost.Asset](opts.CacheSize, nil, opts.CacheTTL),
		now:      time.Now,
		suffix:   randomSuffix,
	}
}

// Handler returns the router with every endpoint
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/wallet/{address}", s.handleWallet).Methods(http.MethodGet)
	api.HandleFunc("/initiate-payment", s.handleInitiatePayment).Methods(http.MethodPost)
	api.HandleFunc("/verify-payment/{paymentId}", s.handleVerifyPayment).Methods(http.MethodGet)

	return r
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.log.Info("starting companion server", "port", port, "service_address", s.opts.ServiceAddress)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, provider.ErrorResponse{Error: msg})
}

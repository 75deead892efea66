// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/types"
)

// Service interfaces for dependency injection and testing

// LedgerServiceInterface defines the interface for ledger operations
type LedgerServiceInterface interface {
	GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error)
	History(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error)
	AdminAdjust(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, error)
}

// PaymentServiceInterface defines the interface for payment lifecycle operations
type PaymentServiceInterface interface {
	Create(ctx context.Context, input *service.CreatePaymentInput) (*models.PaymentTransaction, error)
	Get(ctx context.Context, id string) (*models.PaymentTransaction, error)
	GetActive(ctx context.Context, userID string) (*models.PaymentTransaction, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*models.PaymentTransaction, error)
	Cancel(ctx context.Context, id, actorUserID string) (*models.PaymentTransaction, error)
	Settle(ctx context.Context, id string, outcome types.PaymentStatus) (*models.PaymentTransaction, error)
}

// GateServiceInterface defines the interface for the consumption gate
type GateServiceInterface interface {
	Authorize(ctx context.Context, input *service.AuthorizeInput) (*service.AuthorizeResult, error)
}

// UserStore defines the interface for user persistence
type UserStore interface {
	Create(ctx context.Context, user *models.User, balance *models.TokenBalance) error
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// UsageReader defines the interface for mirrored usage analytics
type UsageReader interface {
	MonthlyUsageByUser(ctx context.Context, userID string, from, to time.Time) ([]*storage.MonthlyUsage, error)
}

// PlanCatalog defines the interface for plan catalog reads
type PlanCatalog interface {
	List() []*models.PlanDefinition
}

// Server represents the HTTP API server.
type Server struct {
	router         *mux.Router
	httpServer     *http.Server
	ledgerService  LedgerServiceInterface
	paymentService PaymentServiceInterface
	gateService    GateServiceInterface
	userStore      UserStore
	usageReader    UsageReader // optional
	planCatalog    PlanCatalog
	config         *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FreeTierRPS     int
	PaidTierRPS     int
	UnlimitedRPS    int
	// OperatorKey authorizes settlement and adjustment calls. Empty disables
	// the operator endpoints.
	OperatorKey string
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	ledgerService LedgerServiceInterface,
	paymentService PaymentServiceInterface,
	gateService GateServiceInterface,
	userStore UserStore,
	usageReader UsageReader,
	planCatalog PlanCatalog,
) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		ledgerService:  ledgerService,
		paymentService: paymentService,
		gateService:    gateService,
		userStore:      userStore,
		usageReader:    usageReader,
		planCatalog:    planCatalog,
		config:         config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPS, s.config.PaidTierRPS, s.config.UnlimitedRPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter)) // Rate limiting after CORS
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// User endpoints
	api.HandleFunc("/users", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")

	// Ledger endpoints
	api.HandleFunc("/users/{id}/balance", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/users/{id}/transactions", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/users/{id}/usage", s.handleGetUsage).Methods("GET")

	// Plan catalog
	api.HandleFunc("/plans", s.handleListPlans).Methods("GET")

	// Payment lifecycle endpoints
	api.HandleFunc("/payments", s.handleCreatePayment).Methods("POST")
	api.HandleFunc("/payments/{id}", s.handleGetPayment).Methods("GET")
	api.HandleFunc("/payments/{id}/cancel", s.handleCancelPayment).Methods("POST")
	api.HandleFunc("/users/{id}/payments", s.handleListPayments).Methods("GET")
	api.HandleFunc("/users/{id}/payments/active", s.handleGetActivePayment).Methods("GET")

	// Consumption gate
	api.HandleFunc("/generations/authorize", s.handleAuthorizeGeneration).Methods("POST")

	// Operator endpoints (guarded by X-Operator-Key)
	api.HandleFunc("/payments/{id}/settle", s.handleSettlePayment).Methods("POST")
	api.HandleFunc("/users/{id}/adjustments", s.handleAdminAdjust).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "token-ledger",
	})
}

// requireOperator rejects the request unless it carries the operator key.
// Returns false after writing the error response.
func (s *Server) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	if s.config.OperatorKey == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Operator endpoints are disabled", nil)
		return false
	}
	if r.Header.Get("X-Operator-Key") != s.config.OperatorKey {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid operator key", nil)
		return false
	}
	return true
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

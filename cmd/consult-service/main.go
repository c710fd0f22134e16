package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/telecare-health/platform/pkg/auth"
	"github.com/telecare-health/platform/pkg/billing"
	"github.com/telecare-health/platform/pkg/catalog"
	"github.com/telecare-health/platform/pkg/common/config"
	"github.com/telecare-health/platform/pkg/common/database"
	"github.com/telecare-health/platform/pkg/common/kafka"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/consultation"
	"github.com/telecare-health/platform/pkg/inventory"
	"github.com/telecare-health/platform/pkg/notification"
	"github.com/telecare-health/platform/pkg/observability/metrics"
	"github.com/telecare-health/platform/pkg/payment"
	"github.com/telecare-health/platform/pkg/prescription"
)

func main() {
	logger.Init()
	cfg := config.Load()
	metrics.Init()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	catalogRepo := catalog.NewRepository(db)
	consultationRepo := consultation.NewRepository(db)
	prescriptionRepo := prescription.NewRepository(db)
	chargeRepo := billing.NewRepository(db)
	paymentRepo := payment.NewRepository(db)
	inventoryRepo := inventory.NewRepository(db)

	for name, migrate := range map[string]func() error{
		"catalog":       catalogRepo.AutoMigrate,
		"consultations": consultationRepo.AutoMigrate,
		"prescriptions": prescriptionRepo.AutoMigrate,
		"charges":       chargeRepo.AutoMigrate,
		"payments":      paymentRepo.AutoMigrate,
		"inventory":     inventoryRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).Fatalf("failed to migrate %s tables", name)
		}
	}

	producer := kafka.NewProducer(cfg, cfg.NotificationTopic)
	defer producer.Close()
	outbox := notification.NewOutbox(producer)

	catalogIndex := catalog.NewIndex(catalogRepo, database.GetRedis(), cfg.CatalogCacheTTL)
	reconciler := inventory.NewReconciler(inventoryRepo)

	billingService := billing.NewService(chargeRepo, prescriptionRepo, catalogIndex)
	consultationService := consultation.NewService(consultationRepo, prescriptionRepo, billingService, outbox)
	prescriptionService := prescription.NewService(prescriptionRepo, consultationRepo, billingService)
	paymentService := payment.NewService(paymentRepo, consultationRepo, chargeRepo, reconciler, payment.NewRazorpayGateway(cfg), outbox)

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to initialise token manager")
	}

	router := mux.NewRouter()
	router.Use(auth.Logging, auth.Recovery, auth.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
	if err != nil {
		logger.Log.WithError(err).Warn("OIDC not configured, SSO login disabled")
	} else {
		registerSSO(router, oidcAuth)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Authenticate(jwtManager))
	consultation.NewHandler(consultationService).Register(api)
	prescription.NewHandler(prescriptionService).Register(api)
	billing.NewHandler(billingService).Register(api)
	payment.NewHandler(paymentService).Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("consult service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start consult service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down consult service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("consult service forced to shutdown")
	}
	database.ClosePostgres()
	database.CloseRedis()
	logger.Log.Info("consult service stopped")
}

func registerSSO(router *mux.Router, oidcAuth *auth.OIDCAuthenticator) {
	router.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		http.Redirect(w, r, oidcAuth.AuthCodeURL(state), http.StatusFound)
	}).Methods(http.MethodGet)

	router.HandleFunc("/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		token, err := oidcAuth.Exchange(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			http.Error(w, "authorization code exchange failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(token)
	}).Methods(http.MethodGet)
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"axonflow/platform/internal/consent"
	"axonflow/platform/internal/extraction"
	"axonflow/platform/internal/lineage"
	"axonflow/platform/internal/llmoracle"
	"axonflow/platform/internal/parse"
	"axonflow/platform/internal/policyconfig"
	"axonflow/platform/internal/ratelimit"
	"axonflow/platform/internal/reconcile"
	"axonflow/platform/internal/security"
	"axonflow/platform/shared/logger"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewServer wires every component behind Handler.Router and returns the
// http.Handler the caller should serve, following agent/run.go's
// mux+cors+promhttp composition.
func NewServer(db *sql.DB, oracle llmoracle.Oracle) (http.Handler, error) {
	cfg, err := policyconfig.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	log := logger.New("gateway")
	authSecret := []byte(os.Getenv("JWT_SECRET"))

	var limiter ratelimit.Limiter
	limits := ratelimit.Limits{
		UserPerMinute: cfg.UserPerMinute, UserPerDay: cfg.UserPerDay,
		OrgPerMinute: cfg.OrgPerMinute, OrgPerDay: cfg.OrgPerDay,
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter = ratelimit.NewRedis(client, limits)
	} else {
		limiter = ratelimit.NewMemory(limits)
	}

	consentEngine := consent.New(consent.NewPostgresRepository(db), consent.Config{
		Enabled: cfg.ConsentEnabled, GracePeriodDays: cfg.ConsentGracePeriodDays,
		ExpirationMonths: cfg.ConsentExpirationMonths, CurrentPolicyVersion: cfg.CurrentPolicyVersion,
	}, log)

	securityPipeline := security.New(log)

	parser := parse.New(oracle, parse.NewPostgresRepository(db), parse.Config{EvalMinScore: cfg.EvalMinScore}, log)

	reconciler := reconcile.New(reconcile.NewPostgresRepository(db), reconcile.Config{VarianceThreshold: cfg.ConflictVarianceThreshold})

	ledger := lineage.New(lineage.NewPostgresRepository(db))

	extractor := extraction.New(cfg.LowConfidenceThreshold)

	auditRepo := NewPostgresAuditRepository(db)

	handler := New(cfg, authSecret, limiter, consentEngine, securityPipeline, oracle, parser, reconciler, ledger, extractor, auditRepo, log, uuid.NewString)

	router := handler.Router()
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return corsMiddleware.Handler(router), nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"service":   "axonflow-gateway",
		"timestamp": time.Now().UTC(),
	})
}

// Run opens the database connection, builds the server, and blocks
// serving HTTP on PORT. It calls log.Fatal on an unrecoverable startup
// error, mirroring agent.Run's fail-fast startup discipline.
func Run(oracle llmoracle.Oracle) {
	databaseURL := os.Getenv("DATABASE_URL")
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	handler, err := NewServer(db, oracle)
	if err != nil {
		log.Fatalf("build gateway server: %v", err)
	}

	port := getEnv("PORT", "8080")
	log.Printf("AxonFlow AI Safety & Governance Gateway starting on port %s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

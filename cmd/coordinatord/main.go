package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mpccoordinator/config"
	"mpccoordinator/core/callbudget"
	"mpccoordinator/core/dataset"
	"mpccoordinator/core/events"
	"mpccoordinator/core/identity"
	"mpccoordinator/core/keyenvelope"
	"mpccoordinator/core/orchestrator"
	"mpccoordinator/core/proof"
	"mpccoordinator/core/query"
	"mpccoordinator/core/request"
	"mpccoordinator/core/vote"
	"mpccoordinator/gateway/middleware"
	"mpccoordinator/gateway/routes"
	"mpccoordinator/observability/logging"
	telemetry "mpccoordinator/observability/otel"
	"mpccoordinator/persistence"
	"mpccoordinator/storage"
)

// publicPaths lists the routes §6 permits anonymous callers to reach:
// list_active_parties, list_proofs, list_requests_public_view.
var publicPaths = []string{
	"/healthz",
	"/api/v1/parties/active",
	"/api/v1/requests/public",
	"/api/v1/proofs",
}

func main() {
	configPath := flag.String("config", "./coordinator.toml", "path to the coordinator's TOML configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MPC_ENV"))
	logging.Setup("mpc-coordinator", env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    true,
		Metrics:     cfg.Telemetry.OTLPEndpoint != "",
		Traces:      cfg.Telemetry.OTLPEndpoint != "",
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := persistence.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}

	tokenDB, err := storage.NewLevelDB(cfg.Database.LevelDBPath)
	if err != nil {
		log.Fatalf("token store error: %v", err)
	}
	defer tokenDB.Close()

	hub := query.NewHub()
	emitter := events.MultiEmitter{hub}

	// callBudget is the shared oracle/KDF admission pool: upload (via
	// DeriveHandle) and execute (via oracle submission and unwrap) draw
	// from the same pool, and whichever finds it exhausted fails fast
	// rather than queuing (§5).
	callBudget := callbudget.New(cfg.Backpressure.CallBudget)

	tokens := keyenvelope.NewTokenStore(tokenDB)
	kdfClient := keyenvelope.NewHTTPKDFClient(cfg.KDF.Endpoint, cfg.KDF.Timeout)
	keys, err := keyenvelope.NewService(kdfClient, tokens, persistence.NewHandleRepo(db), emitter)
	if err != nil {
		log.Fatalf("key envelope service error: %v", err)
	}
	keys.SetCallBudget(callBudget)

	parties, err := identity.NewRegistry(persistence.NewPartyRepo(db), keys, cfg.Identity.LivenessWindow, emitter)
	if err != nil {
		log.Fatalf("identity registry error: %v", err)
	}

	datasets, err := dataset.NewDatasetStore(persistence.NewDatasetRepo(db), parties, emitter)
	if err != nil {
		log.Fatalf("dataset store error: %v", err)
	}
	datasets.SetUploadQuota(cfg.Backpressure.UploadQuotaPerPrincipal)

	votes, err := vote.NewLedger(persistence.NewVoteRepo(db), emitter)
	if err != nil {
		log.Fatalf("vote ledger error: %v", err)
	}

	requests, err := request.NewEngine(parties, votes, datasets, tokens, persistence.NewRequestRepo(db), emitter)
	if err != nil {
		log.Fatalf("request engine error: %v", err)
	}
	if cfg.Request.Expiry > 0 {
		requests.SetExpiry(cfg.Request.Expiry)
	}

	proofs, err := proof.NewLog(persistence.NewProofRepo(db), proof.Config{
		MirrorPath: cfg.AuditLog.Path,
		MaxSizeMB:  cfg.AuditLog.MaxSizeMB,
		MaxBackups: cfg.AuditLog.MaxBackups,
		MaxAgeDays: cfg.AuditLog.MaxAgeDays,
	}, emitter)
	if err != nil {
		log.Fatalf("proof log error: %v", err)
	}

	template := orchestrator.DefaultTemplate()
	if templatePath := strings.TrimSpace(os.Getenv("MPC_PROMPT_TEMPLATE")); templatePath != "" {
		loaded, err := orchestrator.LoadTemplate(templatePath)
		if err != nil {
			log.Fatalf("prompt template error: %v", err)
		}
		template = loaded
	}
	oracleClient := orchestrator.NewHTTPOracleClient(cfg.Oracle.Endpoint, cfg.Oracle.Timeout, template)
	orch := orchestrator.New(requests, datasets, keys, oracleClient, proofs, template)
	orch.SetRetryPolicy(orchestrator.RetryPolicy{
		MaxAttempts: cfg.Execution.MaxRetries,
		MinBackoff:  cfg.Execution.RetryBase,
		MaxBackoff:  cfg.Execution.RetryMax,
	})
	orch.SetCallBudget(callBudget)

	gateway := query.NewGateway(parties, datasets, requests, proofs)

	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        cfg.Auth.HMACSecret != "",
		HMACSecret:     cfg.Auth.HMACSecret,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		OptionalPaths:  publicPaths,
		AllowAnonymous: true,
	}, nil)
	observability := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     true,
		LogRequests: env != "production",
	}, nil)
	rateLimiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"default": {RatePerSecond: cfg.RateLimit.RatePerSecond, Burst: cfg.RateLimit.Burst},
	}, nil)

	router := routes.NewRouter(&routes.Services{
		Parties:      parties,
		Keys:         keys,
		Datasets:     datasets,
		Requests:     requests,
		Orchestrator: orch,
		Gateway:      gateway,
		Hub:          hub,
		Auth:         authenticator,
		Obs:          observability,
		RateLim:      rateLimiter,
		CORS:         middleware.CORSConfig{},
	})
	handler := otelhttp.NewHandler(router, "mpc-coordinator")

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		var err error
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			log.Printf("starting coordinator on %s (tls)", cfg.ListenAddress)
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			log.Printf("starting coordinator on %s", cfg.ListenAddress)
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vastulab/vastu-backend/internal/application"
	appanalyses "github.com/vastulab/vastu-backend/internal/application/analyses"
	appusers "github.com/vastulab/vastu-backend/internal/application/users"
	"github.com/vastulab/vastu-backend/internal/config"
	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/notify"
	rulesdomain "github.com/vastulab/vastu-backend/internal/domain/rules"
	usersdomain "github.com/vastulab/vastu-backend/internal/domain/users"
	aiclient "github.com/vastulab/vastu-backend/internal/infra/ai/openai"
	mysqlp "github.com/vastulab/vastu-backend/internal/infra/db/mysql"
	postgresp "github.com/vastulab/vastu-backend/internal/infra/db/postgres"
	"github.com/vastulab/vastu-backend/internal/infra/httpserver"
	notifyInfra "github.com/vastulab/vastu-backend/internal/infra/notify"
	rulesInfra "github.com/vastulab/vastu-backend/internal/infra/rules"
	"github.com/vastulab/vastu-backend/internal/infra/scoring"
	minioStore "github.com/vastulab/vastu-backend/internal/infra/storage"
	"github.com/vastulab/vastu-backend/internal/middleware"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	db, analysisRepo, userRepo, ruleRepo, err := openDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	if cfg.Rules.SeedFile != "" {
		seed, err := rulesInfra.LoadFile(cfg.Rules.SeedFile)
		if err != nil {
			log.Fatalf("rule seed load error: %v", err)
		}
		if err := rulesInfra.Seed(ctx, ruleRepo, seed); err != nil {
			log.Fatalf("rule seed error: %v", err)
		}
		log.Printf("seeded %d rules from %s", len(seed), cfg.Rules.SeedFile)
	}

	var premium domain.Scorer
	if cfg.OpenAI.Enabled && cfg.OpenAI.APIKey != "" {
		premium = aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}

	var sink notify.Sink
	if cfg.SMTP.Enabled {
		sink = notifyInfra.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.User, cfg.SMTP.Password)
	}

	usersSvc := &appusers.Service{
		Repo:  userRepo,
		Sink:  sink,
		Clock: application.SystemClock{},
	}

	svc := &appanalyses.Service{
		Repo:           analysisRepo,
		Users:          userRepo,
		Catalog:        ruleRepo,
		Blobs:          store,
		Scorer:         scoring.NewRuleBased(),
		PremiumScorer:  premium,
		Sink:           sink,
		Clock:          application.SystemClock{},
		ScoringTimeout: time.Duration(cfg.Scoring.TimeoutSeconds) * time.Second,
	}
	svc.StartWorkers(cfg.Scoring.Workers, cfg.Scoring.QueueSize)

	handler := httpserver.NewRouter(httpserver.Deps{
		Analyses: svc,
		Users:    usersSvc,
		Catalog:  ruleRepo,
		Health: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"storage":  middleware.CheckerFunc(store.Check),
		},
		RateRPS:   cfg.RateLimit.RPS,
		RateBurst: cfg.RateLimit.Burst,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// let queued scoring jobs finish before the process exits
	svc.StopWorkers()
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, domain.Repository, usersdomain.Repository, rulesdomain.Catalog, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return db, mysqlp.NewAnalysisRepository(db), mysqlp.NewUserRepository(db), mysqlp.NewRuleRepository(db), nil
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return db, postgresp.NewAnalysisRepository(db), postgresp.NewUserRepository(db), postgresp.NewRuleRepository(db), nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

package bootstrap

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"referral-backend/internal/apply"
	"referral-backend/internal/audit"
	"referral-backend/internal/llm"
	openai "referral-backend/internal/llm/openai"
	"referral-backend/internal/patients"
	"referral-backend/internal/pipeline"
	"referral-backend/internal/queue"
	"referral-backend/internal/referrals"
	"referral-backend/internal/shared/config"
	"referral-backend/internal/shared/server"
	"referral-backend/internal/shared/storage/db"
	"referral-backend/internal/shared/storage/object"
	localstore "referral-backend/internal/shared/storage/object/local"
	s3store "referral-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	ReferralsRepo referrals.Repo
	PatientsRepo  patients.Repo
	Encryptor     patients.Encryptor
	Matcher       *patients.Matcher

	ReferralsService *referrals.Service
	FastPipeline     *pipeline.FastService
	FullPipeline     *pipeline.FullService
	ApplyService     *apply.Service

	ReferralsHandler *referrals.Handler
	PipelineHandler  *pipeline.Handler
	ApplyHandler     *apply.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	signer, err := buildSigner(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	encryptor, err := buildEncryptor(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        sqlDB,
		Store:     store,
		Queue:     queueClient,
		Encryptor: encryptor,
	}

	if err := buildServices(app, signer); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           app.Config,
		ReferralsHandler: app.ReferralsHandler,
		PipelineHandler:  app.PipelineHandler,
		ApplyHandler:     app.ApplyHandler,
		DevUploadStore:   devUploadStore(store),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildSigner(ctx context.Context, cfg config.Config) (referrals.UploadSigner, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.NewPresigner(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, 0)
	default:
		return &localstore.Signer{BaseURL: cfg.PublicBaseURL}, nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

// buildEncryptor derives the patient-identity key. Production requires an
// explicit 32-byte hex key; dev falls back to a fixed insecure key so local
// records survive restarts.
func buildEncryptor(cfg config.Config) (patients.Encryptor, error) {
	raw := strings.TrimSpace(cfg.PatientKeyHex)
	if raw == "" {
		if !isDevLike(cfg.Env) {
			return nil, fmt.Errorf("PATIENT_ENCRYPTION_KEY is required")
		}
		log.Printf("bootstrap: PATIENT_ENCRYPTION_KEY empty; using insecure dev key")
		sum := sha256.Sum256([]byte("referral-backend-dev-patient-key"))
		return patients.NewAESEncryptor(sum[:])
	}

	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode PATIENT_ENCRYPTION_KEY: %w", err)
	}
	return patients.NewAESEncryptor(key)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func devUploadStore(store object.ObjectStore) server.DevUploadStore {
	if s, ok := store.(server.DevUploadStore); ok {
		return s
	}
	return nil
}

func buildServices(app *App, signer referrals.UploadSigner) error {
	var referralRepo referrals.Repo
	var patientRepo patients.Repo
	if app.DB != nil {
		referralRepo = &referrals.PGRepo{DB: app.DB}
		patientRepo = &patients.PGRepo{DB: app.DB}
	} else {
		referralRepo = referrals.NewMemoryRepo()
		patientRepo = patients.NewMemoryRepo()
	}

	auditSink := audit.Sink(audit.LogSink{})

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		client, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"))
		if err != nil {
			return err
		}
		llmClient = client
	}

	matcher := &patients.Matcher{Repo: patientRepo, Encryptor: app.Encryptor}

	referralSvc := &referrals.Service{
		Repo:          referralRepo,
		Store:         app.Store,
		Signer:        signer,
		Audit:         auditSink,
		ExtendedMimes: app.Config.ExtendedMimeTypes,
	}
	fastSvc := &pipeline.FastService{
		Repo:  referralRepo,
		LLM:   llmClient,
		Model: app.Config.FastModel,
	}
	fullSvc := &pipeline.FullService{
		Repo:              referralRepo,
		LLM:               llmClient,
		Model:             app.Config.FullModel,
		HighAccuracyModel: app.Config.HighAccuracyModel,
	}
	applySvc := &apply.Service{
		Documents: referralRepo,
		Patients:  patientRepo,
		Matcher:   matcher,
		Encryptor: app.Encryptor,
		Audit:     auditSink,
	}

	app.ReferralsRepo = referralRepo
	app.PatientsRepo = patientRepo
	app.Matcher = matcher
	app.ReferralsService = referralSvc
	app.FastPipeline = fastSvc
	app.FullPipeline = fullSvc
	app.ApplyService = applySvc
	app.ReferralsHandler = referrals.NewHandler(referralSvc)
	app.PipelineHandler = pipeline.NewHandler(fastSvc, fullSvc, referralRepo)
	app.PipelineHandler.Queue = app.Queue
	app.ApplyHandler = apply.NewHandler(applySvc)

	return nil
}

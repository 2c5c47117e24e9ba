package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/gorax/workflow-core/internal/broadcast"
	"github.com/gorax/workflow-core/internal/config"
	"github.com/gorax/workflow-core/internal/credit"
	"github.com/gorax/workflow-core/internal/errortracking"
	"github.com/gorax/workflow-core/internal/execstore"
	"github.com/gorax/workflow-core/internal/graph"
	"github.com/gorax/workflow-core/internal/objectstore"
	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/registry/nodes"
	"github.com/gorax/workflow-core/internal/runtime"
	"github.com/gorax/workflow-core/internal/secrets"
	"github.com/gorax/workflow-core/internal/tracing"
)

// job is the queue message envelope this worker consumes: one
// RuntimeParams per execution request, the entry shape. This is an
// internal queue format, not an external API contract (HTTP routing and
// request intake are out of this core's scope), so it marshals
// graph.Workflow using its own Go field names rather than a stabilized
// wire schema.
type job struct {
	Workflow graph.Workflow `json:"workflow"`
	UserID string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	ComputeCredits uint `json:"computeCredits"`
	Subscription credit.SubscriptionStatus `json:"subscriptionStatus"`
	OverageLimit *uint `json:"overageLimit"`
	DeploymentID string `json:"deploymentId"`
	MonitorProgress bool `json:"monitorProgress"`
	MonitorTransport string `json:"monitorTransport,omitempty"`
	DevelopmentMode bool `json:"developmentMode"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Prevents the worker from starting with insecure development settings
	// in production environments.
	if cfg.Server.Env == "production" {
		if err := config.ValidateForProduction(cfg); err != nil {
			slog.Error("production configuration validation failed", "error", err)
			os.Exit(1)
		}
	}

	tracker, err := errortracking.Initialize(cfg.Observability)
	if err != nil {
		slog.Error("failed to initialize error tracking", "error", err)
		os.Exit(1)
	}
	defer tracker.Close()

	tracingCleanup, err := tracing.InitGlobalTracer(context.Background(), &cfg.Observability)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer tracingCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, cleanup, err := buildHost(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build runtime host", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("starting workflow worker",
		"queue", cfg.AWS.SQSQueueURL,
		"concurrency", cfg.Worker.Concurrency,
	)
	pollQueue(ctx, sqsClient, cfg, host, tracker, logger)
	slog.Info("worker stopped")
}

// buildHost wires the long-lived collaborators a worker process
// constructs once and reuses for every execution it processes.
func buildHost(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime.Host, func(), error) {
	reg, err := registry.New(nodes.Registrations())
	if err != nil {
		return nil, nil, fmt.Errorf("build node registry: %w", err)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	store := execstore.NewPostgresStore(db)

	redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB: cfg.Redis.DB,
	})
	creditMgr := credit.NewManager(redisClient)

	objStore, err := buildObjectStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("build object store: %w", err)
	}

	getSecret := func(string) (string, bool) { return "", false }
	getIntegration := func(string) (registry.Integration, bool) { return registry.Integration{}, false }
	if cfg.Credential.UseKMS {
		kmsClient, err := secrets.NewKMSClient(ctx, cfg.Credential.KMSKeyID)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("build KMS client: %w", err)
		}
		provider := secrets.NewProvider(kmsClient)
		getSecret = provider.GetSecret
		getIntegration = provider.GetIntegration
	}

	// The websocket transport is always constructed, the kafka one only
	// when brokers are configured; runtime.Run falls back to a
	// noop broadcaster per-request when the job doesn't set
	// MonitorProgress, and selects between them via MonitorTransport.
	bcast := broadcast.NewWebSocketBroadcaster(logger)
	var kafkaBcast broadcast.Broadcaster
	if len(cfg.Monitor.KafkaBrokers) > 0 {
		kafkaBcast = broadcast.NewKafkaBroadcaster(cfg.Monitor.KafkaBrokers, cfg.Monitor.KafkaTopic, logger)
	}

	host := &runtime.Host{
		Registry: reg,
		ObjectStore: objStore,
		CreditManager: creditMgr,
		Store: store,
		Broadcaster: bcast,
		KafkaBroadcaster: kafkaBcast,
		GetSecret: getSecret,
		GetIntegration: getIntegration,
		Logger: logger,
	}

	cleanup := func() {
		db.Close()
		redisClient.Close()
	}
	return host, cleanup, nil
}

func buildObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	if cfg.AWS.S3Bucket == "" {
		return objectstore.NewMemoryStore(), nil
	}
	return objectstore.NewS3Store(cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.S3Bucket)
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.AWS.Endpoint != "" {
		loaded.BaseEndpoint = &cfg.AWS.Endpoint
	}
	return loaded, nil
}

// pollQueue long-polls the SQS execution-request queue, the
// RuntimeParams arriving one job at a time, and runs each to completion
// through the runtime façade. A failed job is reported to error tracking
// and left on the queue for SQS's own retry/DLQ policy rather than
// retried in-process — the step runner's replay semantics
// are what make a redelivery safe to re-run.
func pollQueue(ctx context.Context, client *sqs.Client, cfg *config.Config, host *runtime.Host, tracker *errortracking.Tracker, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl: &cfg.AWS.SQSQueueURL,
				MaxNumberOfMessages: int32(cfg.Queue.MaxMessages),
				WaitTimeSeconds: cfg.Queue.WaitTimeSeconds,
				VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("receive message failed", "error", err)
			tracker.CaptureError(ctx, err)
			time.Sleep(time.Duration(cfg.Queue.PollInterval) * time.Second)
			continue
		}

		for _, msg := range out.Messages {
			processMessage(ctx, client, cfg, host, tracker, logger, msg)
		}
	}
}

func processMessage(ctx context.Context, client *sqs.Client, cfg *config.Config, host *runtime.Host, tracker *errortracking.Tracker, logger *slog.Logger, msg sqstypes.Message) {
	var j job
	if msg.Body == nil || json.Unmarshal([]byte(*msg.Body), &j) != nil {
		logger.Error("discarding malformed job message")
		deleteMessage(ctx, client, cfg, msg)
		return
	}

	ctx = context.WithValue(ctx, "organization_id", j.OrganizationID)
	ctx = context.WithValue(ctx, "workflow_id", j.Workflow.ID)

	monitorTransport := j.MonitorTransport
	if monitorTransport == "" {
		monitorTransport = cfg.Monitor.Transport
	}

	rec, err := runtime.Run(ctx, host, runtime.RuntimeParams{
			Workflow: j.Workflow,
			UserID: j.UserID,
			OrganizationID: j.OrganizationID,
			ComputeCredits: j.ComputeCredits,
			Subscription: j.Subscription,
			OverageLimit: j.OverageLimit,
			DeploymentID: j.DeploymentID,
			MonitorProgress: j.MonitorProgress,
			MonitorTransport: monitorTransport,
			DevelopmentMode: j.DevelopmentMode,
	})
	if err != nil {
		logger.Error("workflow execution failed",
			"organization_id", j.OrganizationID,
			"workflow_id", j.Workflow.ID,
			"error", err,
		)
		tracker.CaptureError(ctx, err)
		return
	}

	logger.Info("workflow execution completed",
		"organization_id", j.OrganizationID,
		"workflow_id", j.Workflow.ID,
		"execution_id", rec.ID,
		"status", rec.Status,
	)

	if cfg.Queue.DeleteAfterProcess {
		deleteMessage(ctx, client, cfg, msg)
	}
}

func deleteMessage(ctx context.Context, client *sqs.Client, cfg *config.Config, msg sqstypes.Message) {
	if msg.ReceiptHandle == nil {
		return
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl: &cfg.AWS.SQSQueueURL,
			ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		slog.Error("failed to delete processed message", "error", err)
	}
}

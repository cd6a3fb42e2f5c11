// Package main is the entry point for the bot server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chopibot/internal/bot"
	"github.com/capitalize-ai/chopibot/internal/channel"
	"github.com/capitalize-ai/chopibot/internal/config"
	"github.com/capitalize-ai/chopibot/internal/handler"
	"github.com/capitalize-ai/chopibot/internal/intent"
	"github.com/capitalize-ai/chopibot/internal/llm"
	"github.com/capitalize-ai/chopibot/internal/middleware"
	natsclient "github.com/capitalize-ai/chopibot/internal/nats"
	"github.com/capitalize-ai/chopibot/internal/qna"
	"github.com/capitalize-ai/chopibot/internal/state"
	"github.com/capitalize-ai/chopibot/pkg/logger"
	"github.com/capitalize-ai/chopibot/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting bot server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chopibot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	var natsClient *natsclient.Client
	if cfg.NeedsNATS() {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()
	}

	store, err := newStateStore(ctx, cfg, natsClient)
	if err != nil {
		log.Fatal("failed to initialize state store", zap.Error(err))
	}
	log.Info("state store ready", zap.String("store", store.Name()))

	qnaClient, err := qna.NewClient(qna.Config{
		Endpoint:        cfg.QnAEndpoint,
		KnowledgeBaseID: cfg.QnAKnowledgeBase,
		EndpointKey:     cfg.QnAEndpointKey,
		Top:             cfg.QnATop,
		ScoreThreshold:  cfg.QnAScoreThreshold,
		Timeout:         cfg.QnATimeout,
	})
	if err != nil {
		log.Fatal("failed to create QnA client", zap.Error(err))
	}

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		log.Fatal("failed to create intent recognizer", zap.Error(err))
	}

	opts := []bot.Option{bot.WithDiagnosticIntents(cfg.DiagnosticIntent)}
	if cfg.TranscriptEnabled {
		if err := natsclient.EnsureTranscriptStream(ctx, natsClient); err != nil {
			log.Fatal("failed to ensure transcript stream", zap.Error(err))
		}
		opts = append(opts, bot.WithTranscript(natsclient.NewTranscriptLogger(natsClient.JetStream())))
	}

	chopibot, err := bot.New(qnaClient, recognizer, store, log, opts...)
	if err != nil {
		log.Fatal("failed to create bot", zap.Error(err))
	}

	connector := channel.NewConnector(cfg.ConnectorToken, cfg.ConnectorTimeout, log)

	var natsConn handler.ConnectionChecker
	if natsClient != nil {
		natsConn = natsClient
	}
	healthHandler := handler.NewHealthHandler(natsConn)
	messageHandler := handler.NewMessageHandler(chopibot, connector, log)
	stateHandler := handler.NewStateHandler(store, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing("chopibot"))
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.ChannelAuthEnable {
			r.Use(middleware.Auth(cfg.ChannelSecret))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/api/messages", messageHandler.Post)
	})

	if cfg.ChannelAuthEnable {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.ChannelSecret))
			r.Use(middleware.RequireScope(middleware.ScopeStateRead))
			r.Get("/conversations/{id}/state", stateHandler.Get)
		})
	} else {
		log.Info("state inspection endpoint disabled without CHANNEL_AUTH_ENABLED")
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func newStateStore(ctx context.Context, cfg *config.Config, nc *natsclient.Client) (state.Store, error) {
	switch cfg.StateStore {
	case config.StateStoreNATS:
		return natsclient.EnsureStateBucket(ctx, nc, cfg.StateBucket)
	case config.StateStoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return state.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
	default:
		return state.NewMemoryStore(), nil
	}
}

func newRecognizer(cfg *config.Config) (bot.Recognizer, error) {
	if cfg.Recognizer != config.RecognizerLLM {
		return intent.NewLUISRecognizer(intent.LUISConfig{
			Endpoint:        cfg.LUISEndpoint,
			AppID:           cfg.LUISAppID,
			SubscriptionKey: cfg.LUISKey,
			Timeout:         cfg.LUISTimeout,
		})
	}

	provider, apiKey := llm.ProviderAnthropic, cfg.AnthropicAPIKey
	if (cfg.DefaultLLM == string(llm.ProviderOpenAI) && cfg.OpenAIAPIKey != "") || apiKey == "" {
		provider, apiKey = llm.ProviderOpenAI, cfg.OpenAIAPIKey
	}

	client, err := llm.NewClient(provider, apiKey)
	if err != nil {
		return nil, err
	}
	return intent.NewLLMRecognizer(client, cfg.LLMModel, cfg.LLMIntents)
}

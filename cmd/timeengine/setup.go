package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/aelexs/time-engine/internal/auth"
	"github.com/aelexs/time-engine/internal/config"
	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/dynamo"
	"github.com/aelexs/time-engine/internal/redis"
	"github.com/aelexs/time-engine/internal/server"
	"github.com/aelexs/time-engine/internal/timeengine/adapter"
	"github.com/aelexs/time-engine/internal/timeengine/app"
	"github.com/aelexs/time-engine/internal/timeengine/port"
	"github.com/aelexs/time-engine/internal/tzconv"
)

// devUserID is the identity of the token minted at startup in local mode.
const devUserID = "00000000-0000-4000-8000-000000000001"

// setup is the time engine composition root. It creates infrastructure
// clients, adapters, the engine registry, and registers the HTTP API.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger
	clock := domain.RealClock{}

	// 1. Remote store.
	dynamoClient, err := dynamo.NewClient(ctx, dynamo.Config{
		Endpoint: cfg.DynamoDB.Endpoint,
		Region:   cfg.AWS.Region,
		Timeout:  cfg.DynamoDB.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("timeengine setup: create dynamo client: %w", err)
	}

	stopwatchStore := adapter.NewStopwatchStore(dynamoClient.DB, cfg.Engine.StopwatchTable, clock)
	bedtimeStore := adapter.NewBedtimeStore(dynamoClient.DB, cfg.Engine.BedtimeTable, clock)
	alarmStore := adapter.NewAlarmStore(dynamoClient.DB, cfg.Engine.AlarmsTable, clock)
	preferenceStore := adapter.NewPreferenceStore(dynamoClient.DB, cfg.Engine.PreferencesTable, clock)

	// 2. Local snapshot cache.
	cache, closeCache, err := createSnapshotCache(ctx, cfg, clock)
	if err != nil {
		return nil, fmt.Errorf("timeengine setup: create snapshot cache: %w", err)
	}

	// 3. Engine registry.
	converter := tzconv.NewConverter()
	preferences := app.NewPreferenceService(app.PreferenceServiceConfig{
		Store:     preferenceStore,
		Converter: converter,
		Logger:    logger,
	})
	registry := app.NewRegistry(app.RegistryConfig{
		Stopwatch:   stopwatchStore,
		Bedtime:     bedtimeStore,
		Alarms:      alarmStore,
		Preferences: preferences,
		Cache:       cache,
		Converter:   converter,
		Clock:       clock,
		Logger:      logger,
		MaxEngines:  cfg.Engine.MaxEngines,
		IdleTimeout: cfg.Engine.IdleTimeout,
	})

	// 4. Identity.
	keyStore, err := createKeyStore(ctx, cfg, logger)
	if err != nil {
		_ = closeCache()
		return nil, fmt.Errorf("timeengine setup: create key store: %w", err)
	}
	validator := auth.NewValidator(auth.ValidatorConfig{
		KeyStore: keyStore,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Clock:    clock,
	})
	if cfg.IsLocal() {
		logDevToken(ctx, cfg, keyStore, clock, logger)
	}

	// 5. HTTP API.
	port.NewHandler(port.HandlerConfig{
		Engines:   registry,
		Identity:  validator,
		Converter: converter,
		Logger:    logger,
	}).Register(deps.HTTPMux)

	logger.InfoContext(ctx, "time engine initialized",
		slog.String("snapshot_backend", cfg.Engine.SnapshotBackend),
	)

	cleanup := func(ctx context.Context) error {
		return errors.Join(registry.Close(ctx), closeCache())
	}
	return cleanup, nil
}

// createSnapshotCache opens the configured local cache and returns its closer.
func createSnapshotCache(ctx context.Context, cfg *config.Config, clock domain.Clock) (app.SnapshotCache, func() error, error) {
	switch cfg.Engine.SnapshotBackend {
	case config.SnapshotBackendSQLite:
		cache, err := adapter.OpenSQLiteSnapshotCache(ctx, cfg.Engine.SQLitePath, clock)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Close, nil

	default:
		redisClient := redis.NewClient(redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			ReadTimeout:  cfg.Redis.Timeout,
			WriteTimeout: cfg.Redis.Timeout,
		})
		return adapter.NewRedisSnapshotCache(redisClient.RDB), redisClient.Close, nil
	}
}

// createKeyStore returns the key store for the configured source.
// file: the PEM key at jwt.key_path, or an ephemeral key in local mode.
// aws: Secrets Manager for the signing key, SSM for verification keys.
func createKeyStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.KeyStore, error) {
	if cfg.JWT.KeySource == config.KeySourceAWS {
		return createAWSKeyStore(ctx, cfg)
	}
	if cfg.JWT.KeyPath != "" {
		return auth.LoadKeyStoreFile(cfg.JWT.KeyPath, cfg.JWT.KeyID)
	}
	if !cfg.IsLocal() {
		return nil, fmt.Errorf("jwt.key_path: %w", domain.ErrConfigRequired)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate dev RSA key: %w", err)
	}
	logger.Info("using ephemeral RSA key for local development", slog.String("key_id", cfg.JWT.KeyID))
	return auth.NewStaticKeyStore(key, cfg.JWT.KeyID), nil
}

func createAWSKeyStore(ctx context.Context, cfg *config.Config) (auth.KeyStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var endpoint *string
	if cfg.AWS.Endpoint != "" {
		endpoint = aws.String(cfg.AWS.Endpoint)
	}

	return adapter.NewAWSKeyStore(ctx, adapter.AWSKeyStoreConfig{
		Secrets: secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
			o.BaseEndpoint = endpoint
		}),
		Params: ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
			o.BaseEndpoint = endpoint
		}),
		Clock:        domain.RealClock{},
		ParamPrefix:  cfg.JWT.ParamPrefix,
		SecretPrefix: cfg.JWT.SecretPrefix,
	})
}

// logDevToken mints a token for a fixed development user so the API can be
// exercised without an identity provider.
func logDevToken(ctx context.Context, cfg *config.Config, keyStore auth.KeyStore, clock domain.Clock, logger *slog.Logger) {
	minter := auth.NewMinter(auth.MinterConfig{
		KeyStore:  keyStore,
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Clock:     clock,
	})
	minted, err := minter.MintAccessToken(domain.MustUserID(devUserID))
	if err != nil {
		logger.WarnContext(ctx, "mint dev token failed", slog.String("error", err.Error()))
		return
	}
	// The redacting log handler would mask the token.
	fmt.Fprintf(os.Stderr, "local development token for %s (expires %s):\n%s\n",
		devUserID, minted.ExpiresAt.Format(time.RFC3339), minted.Token)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/config"
	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/provider"
	"github.com/3leaps/bucketnav/pkg/provider/file"
	"github.com/3leaps/bucketnav/pkg/provider/httpbucket"
	"github.com/3leaps/bucketnav/pkg/provider/s3"
	"github.com/3leaps/bucketnav/pkg/transfer"
)

// errReadOnly is returned by mutating commands under --readonly.
var errReadOnly = errors.New("readonly mode: mutations are disabled")

// providerFactory builds the store for a command. Tests replace it.
var providerFactory = newProvider

func isReadOnly() bool {
	return readOnly || viper.GetBool("readonly") || (appConfig != nil && appConfig.ReadOnly)
}

// ensureWritable fails mutating commands in readonly mode.
func ensureWritable(op string) error {
	if isReadOnly() {
		observability.CLILogger.Debug("Refused mutation in readonly mode", zap.String("op", op))
		return exitError(foundry.ExitInvalidArgument, "Refusing "+op, errReadOnly)
	}
	return nil
}

// providerName reports the configured backend for output envelopes.
func providerName(cfg *config.Config) string {
	switch cfg.Bucket.Backend {
	case config.BackendS3:
		return provider.ProviderS3.String()
	case config.BackendFile:
		return provider.ProviderFile.String()
	}
	return provider.ProviderHTTP.String()
}

// newProvider opens the configured backend.
func newProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Bucket.Backend {
	case config.BackendS3:
		return s3.New(ctx, s3.Config{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			Profile:        cfg.S3.Profile,
			ForcePathStyle: cfg.S3.ForcePathStyle || cfg.S3.Endpoint != "",
		})
	case config.BackendHTTP:
		return httpbucket.New(httpbucket.Config{
			BaseURL:     cfg.Bucket.URL,
			ListTimeout: cfg.Bucket.ListTimeout,
			RetryCount:  cfg.Bucket.RetryCount,
			UserAgent:   appName + "/" + versionInfo.Version,
			Headers:     cfg.Bucket.Headers,
		})
	case config.BackendFile:
		return file.New(file.Config{Dir: cfg.File.Dir})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Bucket.Backend)
	}
}

// openStore opens the provider and the browsing view over it.
func openStore(ctx context.Context) (provider.Provider, browse.Config, error) {
	bcfg, err := browseConfig(appConfig)
	if err != nil {
		return nil, browse.Config{}, exitError(foundry.ExitInvalidArgument, "Invalid bucket configuration", err)
	}
	p, err := providerFactory(ctx, appConfig)
	if err != nil {
		observability.CLILogger.Error("Failed to open bucket",
			zap.String("backend", appConfig.Bucket.Backend),
			zap.Error(err))
		return nil, browse.Config{}, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open bucket", err)
	}
	return p, bcfg, nil
}

func browseConfig(cfg *config.Config) (browse.Config, error) {
	bucketURL := cfg.Bucket.URL
	if cfg.Bucket.MaskURL == "" {
		switch cfg.Bucket.Backend {
		case config.BackendS3:
			bucketURL = "s3://" + cfg.S3.Bucket
		case config.BackendFile:
			if abs, err := filepath.Abs(cfg.File.Dir); err == nil {
				bucketURL = "file://" + filepath.ToSlash(abs)
			}
		}
	}
	return browse.NewConfig(browse.Options{
		BucketURL:       bucketURL,
		BucketMaskURL:   cfg.Bucket.MaskURL,
		RootPrefix:      cfg.Bucket.RootPrefix,
		TrashPrefix:     cfg.Bucket.TrashPrefix,
		ExcludePatterns: cfg.Bucket.ExcludePatterns,
		PageSize:        cfg.Bucket.PageSize,
	})
}

// newMutator wires the mutation layer from configuration.
func newMutator(p provider.Provider, bcfg browse.Config) (*transfer.Mutator, error) {
	opts := transfer.DefaultOptions()
	opts.CopyConcurrency = appConfig.Transfer.CopyConcurrency
	opts.UploadConcurrency = appConfig.Transfer.UploadConcurrency
	opts.TrashConcurrency = appConfig.Transfer.TrashConcurrency
	if appConfig.Transfer.RetryBufferMax > 0 {
		opts.RetryBufferMaxMemoryBytes = int64(appConfig.Transfer.RetryBufferMax)
	}
	opts.Logger = observability.CLILogger
	m, err := transfer.New(p, bcfg, opts)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Bucket is not writable", err)
	}
	return m, nil
}

// newWriter returns a JSONL writer with a fresh job id.
func newWriter(w io.Writer) *output.JSONLWriter {
	return output.NewJSONLWriter(w, uuid.New().String(), providerName(appConfig))
}

// serviceError maps a store failure to an exit error, logging it first.
func serviceError(message string, err error, fields ...zap.Field) error {
	observability.CLILogger.Error(message, append(fields, zap.Error(err))...)
	if isUsageError(err) {
		return exitError(foundry.ExitInvalidArgument, message, err)
	}
	if errors.Is(err, context.Canceled) {
		return exitError(foundry.ExitSignalInt, message, err)
	}
	if provider.IsNotFound(err) {
		return exitError(foundry.ExitFileNotFound, message, err)
	}
	return exitError(foundry.ExitExternalServiceUnavailable, message, err)
}

func isUsageError(err error) bool {
	for _, target := range []error{
		transfer.ErrEmptyPrefix,
		transfer.ErrNestedPrefix,
		transfer.ErrSamePrefix,
		transfer.ErrInvalidName,
		transfer.ErrUnchanged,
		transfer.ErrNoUploadFiles,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func closeProvider(p provider.Provider) {
	if err := p.Close(); err != nil {
		observability.CLILogger.Debug("Provider close failed", zap.Error(err))
	}
}

package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/config"
	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/internal/proxy"
	"github.com/3leaps/bucketnav/internal/server"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the signing reverse proxy",
	Long: `Run an HTTP proxy that signs bucket requests with SigV4 and forwards
them to an S3-compatible endpoint.

Routes:
  GET/HEAD /s3           bucket listing (query string forwarded)
  GET/HEAD/PUT /s3/<key> object read and upload
  OPTIONS *              CORS preflight
  GET /healthz           liveness
  GET /metrics           Prometheus metrics (metrics.enabled)

DELETE is answered with 405 unless proxy.allow_delete is set; clients then
fall back to copying into the trash.

The upstream is configured with proxy.* keys or the S3_ENDPOINT, S3_REGION,
S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY variables. Without
static keys the AWS default credential chain is used.

Example:
  bucketnav proxy
  bucketnav proxy --listen :9000 --static ./public
  S3_ENDPOINT=https://s3.fr-par.scw.cloud S3_REGION=fr-par S3_BUCKET=media bucketnav proxy`,
	Args: cobra.NoArgs,
	RunE: runProxy,
}

var (
	proxyListen string
	proxyStatic string
)

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.Flags().StringVar(&proxyListen, "listen", "", "Listen address (default from proxy.listen)")
	proxyCmd.Flags().StringVar(&proxyStatic, "static", "", "Directory served at / (default from proxy.static_dir)")
}

func runProxy(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pc := appConfig.Proxy
	if proxyListen != "" {
		pc.Listen = proxyListen
	}
	if proxyStatic != "" {
		pc.StaticDir = proxyStatic
	}

	creds, err := proxyCredentials(ctx, pc)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to resolve upstream credentials", err)
	}

	var metrics *proxy.Metrics
	if appConfig.Metrics.Enabled {
		metrics = proxy.NewMetrics()
	}
	px, err := proxy.New(proxy.Config{
		Endpoint:    pc.Endpoint,
		Region:      pc.Region,
		Bucket:      pc.Bucket,
		Credentials: creds,
		AllowDelete: pc.AllowDelete,
		StaticDir:   pc.StaticDir,
		Metrics:     metrics,
		Logger:      observability.CLILogger,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid proxy configuration", err)
	}

	srv := server.New(pc.Listen, px.Handler(), observability.CLILogger)
	if pc.ShutdownTimeout > 0 {
		srv.ShutdownTimeout = pc.ShutdownTimeout
	}
	observability.CLILogger.Info("Starting proxy",
		zap.String("listen", pc.Listen),
		zap.String("endpoint", pc.Endpoint),
		zap.String("bucket", pc.Bucket),
		zap.Bool("allow_delete", pc.AllowDelete))

	if err := srv.Run(ctx, nil); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Proxy stopped", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		observability.CLILogger.Info("Proxy stopped")
	}
	return nil
}

// proxyCredentials prefers static keys and falls back to the SDK chain.
func proxyCredentials(ctx context.Context, pc config.ProxyConfig) (aws.CredentialsProvider, error) {
	if pc.AccessKeyID != "" || pc.SecretAccessKey != "" {
		if pc.AccessKeyID == "" || pc.SecretAccessKey == "" {
			return nil, errors.New("both proxy.access_key_id and proxy.secret_access_key must be set")
		}
		return credentials.NewStaticCredentialsProvider(pc.AccessKeyID, pc.SecretAccessKey, ""), nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(pc.Region))
	if err != nil {
		return nil, err
	}
	if cfg.Credentials == nil {
		return nil, errors.New("no AWS credentials found")
	}
	return cfg.Credentials, nil
}

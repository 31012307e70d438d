// Package cmd implements the bucketnav command line.
package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/bucketnav/internal/config"
	"github.com/3leaps/bucketnav/internal/observability"
)

const appName = "bucketnav"

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	cfgFile  string
	readOnly bool
	verbose  bool

	// appConfig is loaded before every command runs.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Browse and manage an S3-compatible bucket",
	Long: `bucketnav browses an S3-compatible bucket as folders and files and
performs safe mutations on it: copy, rename, delete with a trash fallback,
upload, and download of a folder's files as one ZIP archive.

The bucket is reached either through a bucket URL (usually the built-in
signing proxy, see "bucketnav proxy") or directly through the AWS SDK.

Configuration is read from --config, then BUCKETNAV_* environment
variables, then flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	setDefaults()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (YAML)")
	pf.BoolVar(&readOnly, "readonly", false, "Refuse every mutating command")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("bucket-url", "", "Bucket URL (http backend)")
	pf.String("mask-url", "", "Base URL for object links shown to users")
	pf.String("root", "", "Root prefix that confines browsing")
	pf.String("backend", "", "Store backend: http, s3 or file")
	pf.String("dir", "", "Directory served as the bucket (file backend)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	bindFlags()
}

// bindFlags ties persistent flags to their config keys.
func bindFlags() {
	pf := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("readonly", pf.Lookup("readonly"))
	_ = viper.BindPFlag("bucket.url", pf.Lookup("bucket-url"))
	_ = viper.BindPFlag("bucket.mask_url", pf.Lookup("mask-url"))
	_ = viper.BindPFlag("bucket.root_prefix", pf.Lookup("root"))
	_ = viper.BindPFlag("bucket.backend", pf.Lookup("backend"))
	_ = viper.BindPFlag("file.dir", pf.Lookup("dir"))
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

func initConfig(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	config.BindEnv(v)

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appConfig = cfg

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := observability.Configure(appName, level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	return nil
}

// exitCodeError carries the process exit code for a failed command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, err: fmt.Errorf("%s: %w (exit code %d)", message, err, code)}
}

// ExitCode returns the exit code carried by err: 0 for nil, 1 when err
// carries none.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *exitCodeError
	if errors.As(err, &e) {
		return e.code
	}
	return 1
}

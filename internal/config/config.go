// Package config loads bucketnav settings from defaults, an optional YAML
// file, BUCKETNAV_* environment variables and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/bucketnav/pkg/match"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "BUCKETNAV"

// Backends.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
	BackendFile = "file"
)

// Config is the full application configuration.
type Config struct {
	Bucket   BucketConfig   `mapstructure:"bucket"`
	S3       S3Config       `mapstructure:"s3"`
	File     FileConfig     `mapstructure:"file"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	// ReadOnly refuses every mutating command.
	ReadOnly bool `mapstructure:"readonly"`
}

// BucketConfig selects the store and the browsing view over it.
type BucketConfig struct {
	// Backend is "http" (bucket URL, usually the signing proxy), "s3" or
	// "file" (a local directory).
	Backend         string            `mapstructure:"backend"`
	URL             string            `mapstructure:"url"`
	MaskURL         string            `mapstructure:"mask_url"`
	RootPrefix      string            `mapstructure:"root_prefix"`
	TrashPrefix     string            `mapstructure:"trash_prefix"`
	ExcludePatterns []string          `mapstructure:"exclude_patterns"`
	PageSize        int               `mapstructure:"page_size"`
	ListTimeout     time.Duration     `mapstructure:"list_timeout"`
	RetryCount      int               `mapstructure:"retry_count"`
	Headers         map[string]string `mapstructure:"headers"`
}

// S3Config configures the SDK backend.
type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// FileConfig configures the local directory backend.
type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

// TransferConfig tunes mutations.
type TransferConfig struct {
	CopyConcurrency   int `mapstructure:"copy_concurrency"`
	UploadConcurrency int `mapstructure:"upload_concurrency"`
	// TrashConcurrency of 0 copies every key into the trash at once.
	TrashConcurrency int      `mapstructure:"trash_concurrency"`
	RetryBufferMax   ByteSize `mapstructure:"retry_buffer_max"`
}

// ArchiveConfig tunes download-all.
type ArchiveConfig struct {
	Concurrency      int      `mapstructure:"concurrency"`
	ChunkSize        ByteSize `mapstructure:"chunk_size"`
	AllowDownloadAll bool     `mapstructure:"allow_download_all"`
}

// CrawlConfig tunes recursive listings.
type CrawlConfig struct {
	RateLimit   float64 `mapstructure:"rate_limit"`
	Concurrency int     `mapstructure:"concurrency"`
	PageSize    int     `mapstructure:"page_size"`
}

// ProxyConfig configures the signing proxy.
type ProxyConfig struct {
	Listen          string        `mapstructure:"listen"`
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	AllowDelete     bool          `mapstructure:"allow_delete"`
	StaticDir       string        `mapstructure:"static_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects log level and encoder.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig toggles the proxy's /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ByteSize is a byte count that decodes from "16MiB"-style strings.
type ByteSize int64

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bucket.backend", BackendHTTP)
	v.SetDefault("bucket.url", "http://localhost:8088/s3")
	v.SetDefault("bucket.mask_url", "")
	v.SetDefault("bucket.root_prefix", "")
	v.SetDefault("bucket.trash_prefix", "_trash/")
	v.SetDefault("bucket.exclude_patterns", []string{`^index\.html$`})
	v.SetDefault("bucket.page_size", 50)
	v.SetDefault("bucket.list_timeout", "30s")
	v.SetDefault("bucket.retry_count", 2)

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.force_path_style", false)

	v.SetDefault("file.dir", "")

	v.SetDefault("transfer.copy_concurrency", 4)
	v.SetDefault("transfer.upload_concurrency", 5)
	v.SetDefault("transfer.trash_concurrency", 0)
	v.SetDefault("transfer.retry_buffer_max", "16MiB")

	v.SetDefault("archive.concurrency", 0)
	v.SetDefault("archive.chunk_size", "32KiB")
	v.SetDefault("archive.allow_download_all", true)

	v.SetDefault("crawl.rate_limit", 0)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.page_size", 1000)

	v.SetDefault("proxy.listen", ":8088")
	v.SetDefault("proxy.endpoint", "")
	v.SetDefault("proxy.region", "")
	v.SetDefault("proxy.bucket", "")
	v.SetDefault("proxy.access_key_id", "")
	v.SetDefault("proxy.secret_access_key", "")
	v.SetDefault("proxy.allow_delete", false)
	v.SetDefault("proxy.static_dir", "")
	v.SetDefault("proxy.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "console")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("readonly", false)
}

// envAliases binds the credential variables the proxy has always read.
var envAliases = map[string][]string{
	"proxy.endpoint":          {"BUCKETNAV_PROXY_ENDPOINT", "S3_ENDPOINT"},
	"proxy.region":            {"BUCKETNAV_PROXY_REGION", "S3_REGION"},
	"proxy.bucket":            {"BUCKETNAV_PROXY_BUCKET", "S3_BUCKET"},
	"proxy.access_key_id":     {"BUCKETNAV_PROXY_ACCESS_KEY_ID", "S3_ACCESS_KEY_ID"},
	"proxy.secret_access_key": {"BUCKETNAV_PROXY_SECRET_ACCESS_KEY", "S3_SECRET_ACCESS_KEY"},
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// BindEnv maps BUCKETNAV_SECTION_KEY variables, plus the legacy S3_*
// proxy variables, onto v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a validated Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		byteSizeHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Bucket.Backend {
	case BackendHTTP:
		if err := validateURL(c.Bucket.URL); err != nil {
			return fmt.Errorf("%w: bucket.url: %w", ErrInvalidConfig, err)
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: s3.bucket is required for the s3 backend", ErrInvalidConfig)
		}
	case BackendFile:
		if strings.TrimSpace(c.File.Dir) == "" {
			return fmt.Errorf("%w: file.dir is required for the file backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: bucket.backend must be %q, %q or %q, got %q",
			ErrInvalidConfig, BackendHTTP, BackendS3, BackendFile, c.Bucket.Backend)
	}
	if c.Bucket.MaskURL != "" {
		if err := validateURL(c.Bucket.MaskURL); err != nil {
			return fmt.Errorf("%w: bucket.mask_url: %w", ErrInvalidConfig, err)
		}
	}
	if c.Transfer.CopyConcurrency < 1 || c.Transfer.UploadConcurrency < 1 {
		return fmt.Errorf("%w: transfer concurrency must be >= 1", ErrInvalidConfig)
	}
	if c.Transfer.TrashConcurrency < 0 || c.Archive.Concurrency < 0 {
		return fmt.Errorf("%w: trash and archive concurrency must be >= 0", ErrInvalidConfig)
	}
	if c.Crawl.RateLimit < 0 {
		return fmt.Errorf("%w: crawl.rate_limit must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host: %q", raw)
	}
	return nil
}

func byteSizeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			n, err := match.ParseSize(data.(string))
			if err != nil {
				return nil, err
			}
			return ByteSize(n), nil
		default:
			return data, nil
		}
	}
}

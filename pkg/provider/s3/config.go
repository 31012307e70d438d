// Package s3 implements the provider interface on top of the AWS SDK for
// AWS S3 and S3-compatible stores (Garage, MinIO, Wasabi).
package s3

// Config configures an S3 provider.
//
// Credentials come from the SDK default chain unless AccessKeyID and
// SecretAccessKey are both set. When Endpoint is set no default region is
// applied, since most S3-compatible stores ignore it.
type Config struct {
	// Bucket is the bucket name (required).
	Bucket string

	// Region is the signing region. Defaults to us-east-1 for AWS when
	// neither config nor environment provide one.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile selects a shared config profile.
	Profile string

	// AccessKeyID and SecretAccessKey are explicit static credentials.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the path instead of the host name.
	// Most S3-compatible stores need it.
	ForcePathStyle bool

	// MaxKeys is the default page size for List operations.
	// Zero uses 1000; larger values are clamped.
	MaxKeys int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

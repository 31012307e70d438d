// Package httpbucket implements the provider interface against a bucket
// listing endpoint reached over plain HTTP, such as the bucketnav signing
// proxy or a public-read bucket.
//
// Listing follows the S3 ListObjectsV2 REST shape. Objects are addressed by
// appending the percent-encoded key to the base URL.
package httpbucket

import (
	"net/http"
	"net/url"
	"time"
)

// Config configures an HTTP bucket provider.
type Config struct {
	// BaseURL is the absolute bucket API URL, e.g. http://localhost:8088/s3.
	BaseURL string

	// ListTimeout bounds each listing request. Zero disables the bound and
	// leaves cancellation to the context.
	ListTimeout time.Duration

	// RetryCount is the number of retries for GET and HEAD requests.
	// Listing, PUT and DELETE are never retried.
	RetryCount int

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Headers are added to every request.
	Headers map[string]string

	// HTTPClient replaces the default transport, mostly for tests.
	HTTPClient *http.Client
}

// DefaultRetryCount is used when RetryCount is zero.
const DefaultRetryCount = 2

// DefaultUserAgent identifies bucketnav to the endpoint.
const DefaultUserAgent = "bucketnav"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return &ConfigError{Field: "BaseURL", Message: "bucket URL is required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return &ConfigError{Field: "BaseURL", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "BaseURL", Message: "must be an absolute http or https URL"}
	}
	if c.RetryCount < 0 {
		return &ConfigError{Field: "RetryCount", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "httpbucket config: " + e.Field + ": " + e.Message
}

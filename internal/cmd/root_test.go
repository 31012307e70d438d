package cmd

import (
	"errors"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{"set all values", "1.0.0", "abc123", "2024-01-15"},
		{"set dev version", "dev", "HEAD", "unknown"},
		{"set empty values", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)
			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer func() {
		viper.Reset()
		setDefaults()
		bindFlags()
	}()

	setDefaults()

	assert.Equal(t, "http", viper.GetString("bucket.backend"))
	assert.Equal(t, "http://localhost:8088/s3", viper.GetString("bucket.url"))
	assert.Equal(t, "_trash/", viper.GetString("bucket.trash_prefix"))
	assert.Equal(t, 50, viper.GetInt("bucket.page_size"))
	assert.Equal(t, 4, viper.GetInt("transfer.copy_concurrency"))
	assert.Equal(t, 5, viper.GetInt("transfer.upload_concurrency"))
	assert.Equal(t, 0, viper.GetInt("transfer.trash_concurrency"))
	assert.True(t, viper.GetBool("archive.allow_download_all"))
	assert.Equal(t, ":8088", viper.GetString("proxy.listen"))
	assert.False(t, viper.GetBool("proxy.allow_delete"))
	assert.Equal(t, "info", viper.GetString("logging.level"))
	assert.True(t, viper.GetBool("metrics.enabled"))
	assert.False(t, viper.GetBool("readonly"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))

	err := exitError(foundry.ExitInvalidArgument, "Bad input", errors.New("boom"))
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
	assert.Contains(t, err.Error(), "Bad input: boom (exit code")

	wrapped := errors.Join(errors.New("context"), err)
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(wrapped))
}

func TestVersionCommand(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "deadbeef", "2026-03-01")

	res := run(t, "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "bucketnav 1.2.3 (commit deadbeef, built 2026-03-01")
}

func TestInvalidConfig(t *testing.T) {
	setConfig(t, "bucket.backend", "ftp")
	res := run(t, "ls")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Invalid configuration")
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(res.err))
}

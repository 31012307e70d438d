package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketnav/internal/config"
	"github.com/3leaps/bucketnav/pkg/provider"
	"github.com/3leaps/bucketnav/test/memstore"
)

// useStore routes every command to store for the duration of the test.
func useStore(t *testing.T, store *memstore.Store) {
	t.Helper()
	orig := providerFactory
	providerFactory = func(context.Context, *config.Config) (provider.Provider, error) {
		return store, nil
	}
	t.Cleanup(func() { providerFactory = orig })
}

// setConfig overrides one config key for the duration of the test.
func setConfig(t *testing.T, key string, value any) {
	t.Helper()
	prev := viper.Get(key)
	viper.Set(key, value)
	t.Cleanup(func() { viper.Set(key, prev) })
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the root command with args and restores every flag to its
// default afterwards.
func run(t *testing.T, args ...string) result {
	t.Helper()
	return runWithInput(t, "", args...)
}

// runWithInput is run with stdin fed from input.
func runWithInput(t *testing.T, input string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)
	rootCmd.SetContext(context.Background())

	err := rootCmd.Execute()

	rootCmd.SetArgs(nil)
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetIn(nil)
	resetFlags(rootCmd)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func parseRecords(t *testing.T, s string) []record {
	t.Helper()
	var recs []record
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r record
		require.NoError(t, json.Unmarshal([]byte(line), &r), line)
		recs = append(recs, r)
	}
	return recs
}

func recordsOfType(recs []record, typ string) []record {
	var out []record
	for _, r := range recs {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func decode[T any](t *testing.T, r record) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

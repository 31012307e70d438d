package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/provider"
)

var statCmd = &cobra.Command{
	Use:   "stat <key>",
	Short: "Show the metadata of one object",
	Long: `Show the metadata of one object: size, ETag, modification time,
content type, user metadata and, for the http backend, every response
header returned by the store.

The key is relative to the configured root.

Example:
  bucketnav stat photos/2024/beach.jpg
  bucketnav stat docs/report.pdf --format yaml
  bucketnav stat docs/report.pdf --format jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

var statFormat string

func init() {
	rootCmd.AddCommand(statCmd)
	statCmd.Flags().StringVarP(&statFormat, "format", "f", formatTable, "Output format: table, yaml or jsonl")
}

type statView struct {
	Key          string            `yaml:"key"`
	URL          string            `yaml:"url"`
	Size         int64             `yaml:"size"`
	ETag         string            `yaml:"etag,omitempty"`
	LastModified time.Time         `yaml:"last_modified"`
	ContentType  string            `yaml:"content_type,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	switch statFormat {
	case formatTable, formatYAML, formatJSONL:
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("unsupported format: %s", statFormat))
	}
	if strings.HasSuffix(args[0], "/") {
		return exitError(foundry.ExitInvalidArgument, "Invalid key", fmt.Errorf("%q is a prefix, not an object key", args[0]))
	}

	p, bcfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(p)

	key := bcfg.Absolute(args[0])
	meta, err := p.Head(ctx, key)
	if err != nil {
		return serviceError("Failed to read object metadata", err, zap.String("key", key))
	}
	view := newStatView(bcfg, meta)

	out := cmd.OutOrStdout()
	switch statFormat {
	case formatJSONL:
		w := newWriter(out)
		defer func() { _ = w.Close() }()
		err = w.WriteObject(ctx, &output.ObjectRecord{
			Key:          meta.Key,
			Rel:          args[0],
			Size:         meta.Size,
			ETag:         meta.ETag,
			LastModified: meta.LastModified,
			ContentType:  meta.ContentType,
			Metadata:     meta.Metadata,
			URL:          view.URL,
		})
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		err = enc.Encode(view)
		if err == nil {
			err = enc.Close()
		}
	default:
		err = renderStat(out, view)
	}
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func newStatView(bcfg browse.Config, meta *provider.ObjectMeta) statView {
	v := statView{
		Key:          meta.Key,
		URL:          bcfg.ObjectURL(meta.Key),
		Size:         meta.Size,
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
		ContentType:  meta.ContentType,
		Metadata:     meta.Metadata,
	}
	if len(meta.Headers) > 0 {
		v.Headers = make(map[string]string, len(meta.Headers))
		for k, vals := range meta.Headers {
			v.Headers[k] = strings.Join(vals, ", ")
		}
	}
	return v
}

func renderStat(w io.Writer, v statView) error {
	rows := [][2]string{
		{"Key", v.Key},
		{"URL", v.URL},
		{"Size", fmt.Sprintf("%d (%s)", v.Size, humanBytes(v.Size))},
		{"ETag", v.ETag},
		{"Modified", v.LastModified.UTC().Format(time.RFC3339)},
		{"Type", v.ContentType},
	}
	for _, k := range sortedKeys(v.Metadata) {
		rows = append(rows, [2]string{"Meta " + k, v.Metadata[k]})
	}
	for _, k := range sortedKeys(v.Headers) {
		rows = append(rows, [2]string{"Header " + k, v.Headers[k]})
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-12s %s\n", r[0]+":", r[1]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

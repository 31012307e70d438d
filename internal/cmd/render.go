package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/output"
)

// Output formats shared by browsing commands.
const (
	formatTable = "table"
	formatJSONL = "jsonl"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func entryRecord(e browse.Entry) *output.EntryRecord {
	return &output.EntryRecord{
		Kind:         string(e.Kind),
		Name:         e.Name,
		Prefix:       e.Prefix,
		Key:          e.Key,
		Size:         e.Size,
		LastModified: e.LastModified,
		URL:          e.URL,
	}
}

// writePageJSONL emits one entry record per row followed by a page record.
func writePageJSONL(ctx context.Context, w output.Writer, page *browse.Page) error {
	for _, e := range page.Entries {
		if err := w.WriteEntry(ctx, entryRecord(e)); err != nil {
			return err
		}
	}
	return w.WritePage(ctx, &output.PageRecord{
		Prefix:      page.Prefix,
		Number:      page.Number,
		Entries:     len(page.Entries),
		HasNext:     page.HasNext,
		HasPrevious: page.HasPrevious,
	})
}

// renderPageTable prints a page as aligned columns under a breadcrumb line.
func renderPageTable(w io.Writer, page *browse.Page) error {
	var crumbs []string
	for _, c := range browse.Breadcrumbs(page.Prefix) {
		crumbs = append(crumbs, c.Name)
	}
	if _, err := fmt.Fprintf(w, "%s  (page %d)\n", strings.Join(crumbs, " > "), page.Number); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tLAST MODIFIED")
	for _, e := range page.Entries {
		size, modified := "-", "-"
		if !e.IsFolder() {
			size = humanBytes(e.Size)
		}
		if e.LastModified != nil {
			modified = e.LastModified.UTC().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, size, modified)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var nav []string
	if page.HasPrevious {
		nav = append(nav, "previous page available")
	}
	if page.HasNext {
		nav = append(nav, "next page available")
	}
	if len(nav) > 0 {
		_, err := fmt.Fprintf(w, "(%s)\n", strings.Join(nav, ", "))
		return err
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

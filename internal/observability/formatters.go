// Package observability provides formatted output for the load report and
// the store check.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/job-insights/internal/ingestion"
	"github.com/jonathan/job-insights/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// printBanner prints a single-line box.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBanner(text string) {
	fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, text)
	fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
}

// PrintSources outputs each source file with its row count and digest prefix.
func (p *Printer) PrintSources(sources []*ingestion.Metadata) {
	if len(sources) == 0 {
		return
	}

	var sb strings.Builder
	for i, m := range sources {
		if m == nil {
			continue
		}
		hash := m.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		sb.WriteString(fmt.Sprintf("%-10s %d rows  sha256:%s\n", m.File, m.Rows, hash))
		path := m.Path
		if len(path) > 50 {
			path = "..." + path[len(path)-47:]
		}
		sb.WriteString(fmt.Sprintf("  %s", path))
		if i < len(sources)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("SOURCES", sb.String())
}

// PrintLoadRun outputs the entity counts of a load.
func (p *Printer) PrintLoadRun(run *types.LoadRun, dryRun bool) {
	if run == nil {
		return
	}

	title := "LOAD COMMITTED"
	if dryRun {
		title = "DRY RUN (nothing persisted)"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:        %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Loaded at:  %s\n", run.LoadedAt.UTC().Format("2006-01-02 15:04:05")))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Companies:  %d\n", run.Companies))
	sb.WriteString(fmt.Sprintf("Jobs:       %d\n", run.Jobs))
	sb.WriteString(fmt.Sprintf("Postings:   %d\n", run.Postings))
	sb.WriteString(fmt.Sprintf("Warnings:   %d", run.TotalWarnings()))

	p.printBox(title, sb.String())
}

// PrintWarnings outputs warning counts, largest first.
func (p *Printer) PrintWarnings(warnings map[string]int) {
	kinds := make([]string, 0, len(warnings))
	for kind, n := range warnings {
		if n > 0 {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		p.printBanner("✅ NO NORMALIZATION WARNINGS")
		return
	}
	sort.Slice(kinds, func(i, j int) bool {
		if warnings[kinds[i]] != warnings[kinds[j]] {
			return warnings[kinds[i]] > warnings[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})

	var sb strings.Builder
	for i, kind := range kinds {
		sb.WriteString(fmt.Sprintf("⚠ %-32s %d", kind, warnings[kind]))
		if i < len(kinds)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("NORMALIZATION WARNINGS", sb.String())
}

// PrintTableCounts outputs stored row counts in schema order.
func (p *Printer) PrintTableCounts(counts map[string]int64) {
	if len(counts) == 0 {
		return
	}

	order := []string{"companies", "jobs", "job_postings", "load_runs"}
	var sb strings.Builder
	for i, table := range order {
		n, ok := counts[table]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("%-14s %d", table, n))
		if i < len(order)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("STORED ROWS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDataQuality outputs how much of the data relies on fallbacks.
func (p *Printer) PrintDataQuality(dq types.DataQuality) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Unlinked jobs:         %d / %d (%.1f%%)\n",
		dq.UnlinkedJobs, dq.TotalJobs, dq.UnlinkedFraction*100))
	sb.WriteString(fmt.Sprintf("Undated postings:      %d / %d (%.1f%%)\n",
		dq.UndatedPostings, dq.TotalPostings, dq.UndatedFraction*100))
	sb.WriteString(fmt.Sprintf("Missing applications:  %d / %d (%.1f%%)",
		dq.MissingApplications, dq.TotalPostings, dq.MissingApplicationsFraction*100))

	p.printBox("DATA QUALITY", sb.String())
}

// PrintSample outputs the first few stored postings.
func (p *Printer) PrintSample(batch *types.Batch) {
	if batch == nil || len(batch.Postings) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(batch.Postings), maxItemsToShow)
	for i := 0; i < count; i++ {
		posting := batch.Postings[i]
		posted := "undated"
		if posting.PostedDate != nil {
			posted = posting.PostedDate.Format("2006-01-02")
		}
		sb.WriteString(fmt.Sprintf("#%d  %-10s %s\n", posting.JobID, posted, posting.Sector))
		url := posting.JobURL
		if len(url) > 50 {
			url = url[:47] + "..."
		}
		sb.WriteString(fmt.Sprintf("    %s", url))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(batch.Postings) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more postings", len(batch.Postings)-maxItemsToShow))
	}

	p.printBox("SAMPLE POSTINGS", sb.String())
}

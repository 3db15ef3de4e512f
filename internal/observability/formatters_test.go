package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/job-insights/internal/ingestion"
	"github.com/jonathan/job-insights/internal/types"
)

func TestPrintSources(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSources([]*ingestion.Metadata{
		{File: "companies", Path: "data/Company.csv", Hash: "0123456789abcdef0123", Rows: 12},
		{File: "postings", Path: "data/JobPosting.csv", Hash: "fedcba", Rows: 40},
	})
	output := buf.String()

	assert.Contains(t, output, "SOURCES")
	assert.Contains(t, output, "12 rows")
	assert.Contains(t, output, "sha256:0123456789ab")
	assert.NotContains(t, output, "0123456789abc")
	assert.Contains(t, output, "data/JobPosting.csv")
}

func TestPrintSources_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSources(nil)
	assert.Empty(t, buf.String())
}

func TestPrintLoadRun(t *testing.T) {
	run := &types.LoadRun{
		ID:        uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		LoadedAt:  time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Companies: 2,
		Jobs:      5,
		Postings:  5,
		Warnings:  map[string]int{types.WarnUnlinkedCompany: 3},
	}

	tests := []struct {
		name      string
		dryRun    bool
		wantTitle string
	}{
		{name: "committed", dryRun: false, wantTitle: "LOAD COMMITTED"},
		{name: "dry run", dryRun: true, wantTitle: "DRY RUN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf).PrintLoadRun(run, tt.dryRun)
			output := buf.String()

			assert.Contains(t, output, tt.wantTitle)
			assert.Contains(t, output, "2024-03-15 12:00:00")
			assert.Contains(t, output, "Jobs:       5")
			assert.Contains(t, output, "Warnings:   3")
		})
	}
}

func TestPrintLoadRun_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintLoadRun(nil, false)
	assert.Empty(t, buf.String())
}

func TestPrintWarnings(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintWarnings(map[string]int{
		types.WarnUnparsedPostedTime: 2,
		types.WarnUnlinkedCompany:    7,
		types.WarnFallbackSector:     0,
	})
	output := buf.String()

	assert.Contains(t, output, "NORMALIZATION WARNINGS")
	assert.NotContains(t, output, types.WarnFallbackSector)
	assert.Less(t, strings.Index(output, types.WarnUnlinkedCompany), strings.Index(output, types.WarnUnparsedPostedTime))
}

func TestPrintWarnings_None(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintWarnings(nil)
	assert.Contains(t, buf.String(), "NO NORMALIZATION WARNINGS")
}

func TestPrintTableCounts(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintTableCounts(map[string]int64{
		"load_runs": 4, "companies": 2, "jobs": 5, "job_postings": 5,
	})
	output := buf.String()

	assert.Contains(t, output, "STORED ROWS")
	assert.Less(t, strings.Index(output, "companies"), strings.Index(output, "load_runs"))
	assert.Contains(t, output, "job_postings")
}

func TestPrintDataQuality(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintDataQuality(types.DataQuality{
		TotalJobs: 4, UnlinkedJobs: 1, UnlinkedFraction: 0.25,
		TotalPostings: 4, UndatedPostings: 2, UndatedFraction: 0.5,
	})
	output := buf.String()

	assert.Contains(t, output, "1 / 4 (25.0%)")
	assert.Contains(t, output, "2 / 4 (50.0%)")
}

func TestPrintSample(t *testing.T) {
	posted := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	batch := &types.Batch{}
	for i := 0; i < 7; i++ {
		batch.Postings = append(batch.Postings, types.JobPosting{
			JobID: int64(100 + i), JobURL: fmt.Sprintf("https://x/%d", i), Sector: "AI",
		})
	}
	batch.Postings[0].PostedDate = &posted

	var buf bytes.Buffer
	NewPrinter(&buf).PrintSample(batch)
	output := buf.String()

	assert.Contains(t, output, "#100  2024-03-12")
	assert.Contains(t, output, "undated")
	assert.Contains(t, output, "... and 2 more postings")
	assert.NotContains(t, output, "#105")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.printBox("TEST", strings.Repeat("x", 100))

	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), strings.Repeat("x", 60))
}

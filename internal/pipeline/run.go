// Package pipeline builds the normalized companies, jobs and job postings from
// raw source files and persists them as one unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-insights/internal/ingestion"
	"github.com/jonathan/job-insights/internal/logging"
	"github.com/jonathan/job-insights/internal/metrics"
	"github.com/jonathan/job-insights/internal/parsing"
	"github.com/jonathan/job-insights/internal/types"
)

// Writer replaces all persisted records with a batch in one transaction.
type Writer interface {
	ReplaceAll(ctx context.Context, batch *types.Batch, run types.LoadRun) error
}

// ProgressEvent represents a progress update during a load
type ProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when load progress occurs
type ProgressCallback func(event ProgressEvent)

// RunOptions holds configuration for one load
type RunOptions struct {
	CompaniesPath string
	PostingsPath  string
	JobsPath      string // optional
	LockPath      string // empty disables the process lock
	Ingest        ingestion.Options
	Policy        parsing.MissingPolicy
	Categories    *parsing.CategorySet
	DryRun        bool // build and validate without persisting
	Logger        *logrus.Logger
	Out           io.Writer // step lines; defaults to stdout
	Now           func() time.Time
	OnProgress    ProgressCallback
}

// Result describes a finished load.
type Result struct {
	Run     types.LoadRun
	Sources []*ingestion.Metadata
	Batch   *types.Batch
	DryRun  bool
}

// Run executes one load: lock, read sources concurrently, build, validate and
// replace. Every returned error is a *LoadError, and on error the persisted
// state is whatever it was before the call.
func Run(ctx context.Context, w Writer, opts RunOptions) (*Result, error) {
	start := time.Now()
	result, err := run(ctx, w, opts)

	status := metrics.LoadSucceeded
	switch {
	case errors.Is(err, ErrLoadInProgress):
		status = metrics.LoadRejected
	case err != nil:
		status = metrics.LoadFailed
	}
	metrics.ObserveLoad(status, time.Since(start))
	if err == nil {
		metrics.AddWarnings(result.Run.Warnings)
		if !result.DryRun {
			metrics.SetLoadedRows(result.Run.Companies, result.Run.Jobs, result.Run.Postings)
		}
	}
	return result, err
}

func run(ctx context.Context, w Writer, opts RunOptions) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if opts.CompaniesPath == "" || opts.PostingsPath == "" {
		return nil, &LoadError{Step: StepRead, Err: errors.New("companies and job postings sources are required")}
	}
	if opts.Categories == nil {
		return nil, &LoadError{Step: StepRules, Err: errors.New("category rules are required")}
	}
	if w == nil && !opts.DryRun {
		return nil, &LoadError{Step: StepPersist, Err: errors.New("no store configured")}
	}

	runID := uuid.New()
	log := logger.WithField("run_id", runID.String())
	emit := func(step, message string, content any) {
		if opts.OnProgress != nil {
			opts.OnProgress(ProgressEvent{Step: step, Message: message, RunID: runID.String(), Content: content})
		}
	}

	// Step 1: Lock
	if opts.LockPath != "" {
		_, _ = fmt.Fprintf(out, "Step 1/5: Acquiring load lock %s...\n", opts.LockPath)
		lock := flock.New(opts.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, &LoadError{Step: StepLock, Err: fmt.Errorf("failed to acquire load lock: %w", err)}
		}
		if !locked {
			return nil, &LoadError{Step: StepLock, Err: ErrLoadInProgress}
		}
		defer func() { _ = lock.Unlock() }()
	} else {
		_, _ = fmt.Fprintf(out, "Step 1/5: Load lock disabled\n")
	}

	// Step 2: Read sources concurrently
	_, _ = fmt.Fprintf(out, "Step 2/5: Reading sources...\n")
	tables, err := readSources(ctx, opts)
	if err != nil {
		log.WithError(err).Error("source read failed")
		return nil, &LoadError{Step: StepRead, Err: err}
	}
	var sources []*ingestion.Metadata
	for _, t := range tables.all() {
		sources = append(sources, t.Metadata)
		log.WithFields(logrus.Fields{"file": t.Metadata.File, "path": t.Metadata.Path, "rows": t.Metadata.Rows}).Info("source read")
	}
	emit(StepRead, "sources read", sources)

	// Step 3: Normalize
	_, _ = fmt.Fprintf(out, "Step 3/5: Normalizing records...\n")
	loadTime := now().UTC().Truncate(time.Second)
	src := Sources{
		Companies: tables.companies.Companies(),
		Postings:  tables.postings.Postings(),
	}
	if tables.jobs != nil {
		src.Jobs = tables.jobs.Jobs()
	}
	batch, warnings, err := Build(src, BuildOptions{LoadTime: loadTime, Policy: opts.Policy, Categories: opts.Categories})
	if err != nil {
		log.WithError(err).Error("normalization failed")
		return nil, &LoadError{Step: StepBuild, Err: err}
	}
	for kind, n := range warnings {
		log.WithFields(logrus.Fields{"kind": kind, "count": n}).Debug("normalization warnings")
	}
	emit(StepBuild, "records normalized", map[string]int{
		"companies": len(batch.Companies), "jobs": len(batch.Jobs), "job_postings": len(batch.Postings),
	})

	// Step 4: Validate
	_, _ = fmt.Fprintf(out, "Step 4/5: Validating %d companies, %d jobs, %d postings...\n",
		len(batch.Companies), len(batch.Jobs), len(batch.Postings))
	if err := Validate(batch); err != nil {
		log.WithError(err).Error("validation failed")
		return nil, &LoadError{Step: StepValidate, Err: err}
	}

	loadRun := types.LoadRun{
		ID:            runID,
		LoadedAt:      loadTime,
		CompaniesPath: opts.CompaniesPath,
		PostingsPath:  opts.PostingsPath,
		JobsPath:      opts.JobsPath,
		Companies:     len(batch.Companies),
		Jobs:          len(batch.Jobs),
		Postings:      len(batch.Postings),
		Warnings:      map[string]int(warnings),
	}
	result := &Result{Run: loadRun, Sources: sources, Batch: batch, DryRun: opts.DryRun}

	// Step 5: Persist
	if opts.DryRun {
		_, _ = fmt.Fprintf(out, "Step 5/5: Dry run, nothing persisted\n")
		return result, nil
	}
	_, _ = fmt.Fprintf(out, "Step 5/5: Replacing stored data...\n")
	if err := w.ReplaceAll(ctx, batch, loadRun); err != nil {
		log.WithError(err).Error("persist failed")
		return nil, &LoadError{Step: StepPersist, Err: err}
	}
	emit(StepPersist, "load committed", loadRun)

	log.WithFields(logrus.Fields{
		"companies": loadRun.Companies,
		"jobs":      loadRun.Jobs,
		"postings":  loadRun.Postings,
		"warnings":  loadRun.TotalWarnings(),
	}).Info("load committed")
	return result, nil
}

type sourceTables struct {
	companies *ingestion.Table
	postings  *ingestion.Table
	jobs      *ingestion.Table
}

func (s sourceTables) all() []*ingestion.Table {
	out := []*ingestion.Table{s.companies, s.postings}
	if s.jobs != nil {
		out = append(out, s.jobs)
	}
	return out
}

func readSources(ctx context.Context, opts RunOptions) (sourceTables, error) {
	g, _ := errgroup.WithContext(ctx)

	var tables sourceTables
	var mu sync.Mutex // Protect result assignments

	read := func(path string, schema ingestion.Schema, dst **ingestion.Table) {
		g.Go(func() error {
			t, err := ingestion.ReadFile(path, schema, opts.Ingest)
			if err != nil {
				return err
			}
			mu.Lock()
			*dst = t
			mu.Unlock()
			return nil
		})
	}

	read(opts.CompaniesPath, ingestion.CompaniesSchema, &tables.companies)
	read(opts.PostingsPath, ingestion.PostingsSchema, &tables.postings)
	if opts.JobsPath != "" {
		read(opts.JobsPath, ingestion.JobsSchema, &tables.jobs)
	}

	if err := g.Wait(); err != nil {
		return sourceTables{}, err
	}
	return tables, nil
}

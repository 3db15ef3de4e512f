package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonathan/job-insights/internal/ingestion"
	"github.com/jonathan/job-insights/internal/parsing"
	"github.com/jonathan/job-insights/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	batches []*types.Batch
	runs    []types.LoadRun
	err     error
}

func (w *recordingWriter) ReplaceAll(_ context.Context, batch *types.Batch, run types.LoadRun) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, batch)
	w.runs = append(w.runs, run)
	return nil
}

const (
	companiesCSV = "companyId,companyName,companyUrl,location\n" +
		"1,Acme Corp,https://acme.example,\"Austin, TX\"\n" +
		"2,Globex,,Springfield\n"
	postingsCSV = "Job id,jobUrl,applyUrl,postedTime,applyType,viewsCount,applicationsCount\n" +
		"100,https://x.io/jobs/view/senior-data-engineer-at-acme-corp-12,,3 days ago,EXTERNAL,310,Over 200 applicants\n" +
		"101,https://x.io/jobs/view/analyst-at-unknown-co-7,,recently,INTERNAL,,n/a\n"
)

func writeSources(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	companies := filepath.Join(dir, "Company.csv")
	postings := filepath.Join(dir, "JobPosting.csv")
	require.NoError(t, os.WriteFile(companies, []byte(companiesCSV), 0644))
	require.NoError(t, os.WriteFile(postings, []byte(postingsCSV), 0644))
	return companies, postings
}

func runOpts(t *testing.T, companies, postings string) RunOptions {
	return RunOptions{
		CompaniesPath: companies,
		PostingsPath:  postings,
		LockPath:      filepath.Join(t.TempDir(), "load.lock"),
		Policy:        parsing.MissingAsNull,
		Categories:    defaultCategories(t),
		Out:           &discard{},
		Now:           func() time.Time { return loadTime },
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRun_Success(t *testing.T) {
	companies, postings := writeSources(t)
	w := &recordingWriter{}

	var events []ProgressEvent
	opts := runOpts(t, companies, postings)
	opts.OnProgress = func(e ProgressEvent) { events = append(events, e) }

	result, err := Run(context.Background(), w, opts)
	require.NoError(t, err)

	require.Len(t, w.batches, 1)
	assert.Equal(t, 2, result.Run.Companies)
	assert.Equal(t, 2, result.Run.Jobs)
	assert.Equal(t, 2, result.Run.Postings)
	assert.Equal(t, loadTime, result.Run.LoadedAt)
	assert.Equal(t, 1, result.Run.Warnings[types.WarnUnlinkedCompany])
	assert.Equal(t, 1, result.Run.Warnings[types.WarnUnparsedPostedTime])
	assert.Len(t, result.Sources, 2)
	assert.Equal(t, result.Run.ID, w.runs[0].ID)

	job := w.batches[0].Jobs[0]
	require.NotNil(t, job.CompanyID)
	assert.Equal(t, int64(1), *job.CompanyID)
	assert.Equal(t, "Senior", job.ExperienceLevel)
	assert.Equal(t, "Contract", w.batches[0].Jobs[1].ContractType)

	require.NotEmpty(t, events)
	assert.Equal(t, StepPersist, events[len(events)-1].Step)
}

func TestRun_DryRunDoesNotPersist(t *testing.T) {
	companies, postings := writeSources(t)
	w := &recordingWriter{}
	opts := runOpts(t, companies, postings)
	opts.DryRun = true

	result, err := Run(context.Background(), w, opts)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Empty(t, w.batches)

	result, err = Run(context.Background(), nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Run.Jobs)
}

func TestRun_MissingColumnAbortsBeforePersist(t *testing.T) {
	companies, _ := writeSources(t)
	postings := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(postings, []byte("jobUrl,postedTime\nu,1 day ago\n"), 0644))
	w := &recordingWriter{}

	_, err := Run(context.Background(), w, runOpts(t, companies, postings))
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StepRead, loadErr.Step)

	var missing *ingestion.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Missing, ingestion.ColJobID)
	assert.Empty(t, w.batches)
}

func TestRun_UnreadableSource(t *testing.T) {
	companies, _ := writeSources(t)
	_, err := Run(context.Background(), &recordingWriter{}, runOpts(t, companies, filepath.Join(t.TempDir(), "none.csv")))
	var readErr *ingestion.SourceReadError
	require.ErrorAs(t, err, &readErr)
}

func TestRun_DuplicateKeyAborts(t *testing.T) {
	dir := t.TempDir()
	companies := filepath.Join(dir, "c.csv")
	postings := filepath.Join(dir, "p.csv")
	require.NoError(t, os.WriteFile(companies, []byte("company_id,company_name\n1,A\n1,B\n"), 0644))
	require.NoError(t, os.WriteFile(postings, []byte(postingsCSV), 0644))

	_, err := Run(context.Background(), &recordingWriter{}, runOpts(t, companies, postings))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StepBuild, loadErr.Step)
	var dup *DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestRun_WriterFailure(t *testing.T) {
	companies, postings := writeSources(t)
	boom := errors.New("disk full")

	_, err := Run(context.Background(), &recordingWriter{err: boom}, runOpts(t, companies, postings))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StepPersist, loadErr.Step)
	assert.ErrorIs(t, err, boom)
}

func TestRun_LockHeldByAnotherLoad(t *testing.T) {
	companies, postings := writeSources(t)
	opts := runOpts(t, companies, postings)

	other := flock.New(opts.LockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	w := &recordingWriter{}
	_, err = Run(context.Background(), w, opts)
	assert.ErrorIs(t, err, ErrLoadInProgress)
	assert.Empty(t, w.batches)
}

func TestRun_OptionalJobsFile(t *testing.T) {
	companies, postings := writeSources(t)
	jobs := filepath.Join(t.TempDir(), "Job.csv")
	require.NoError(t, os.WriteFile(jobs, []byte("jobId,contractType,salaryRating\n101,Part-time,3.5\n"), 0644))

	opts := runOpts(t, companies, postings)
	opts.JobsPath = jobs
	w := &recordingWriter{}

	result, err := Run(context.Background(), w, opts)
	require.NoError(t, err)
	assert.Len(t, result.Sources, 3)
	assert.Equal(t, "Part-time", w.batches[0].Jobs[1].ContractType)
	assert.Equal(t, 3.5, *w.batches[0].Jobs[1].SalaryRating)
}

func TestRun_RequiresPathsAndRules(t *testing.T) {
	_, err := Run(context.Background(), &recordingWriter{}, RunOptions{Categories: defaultCategories(t)})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StepRead, loadErr.Step)

	_, err = Run(context.Background(), &recordingWriter{}, RunOptions{CompaniesPath: "a", PostingsPath: "b"})
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StepRules, loadErr.Step)
}

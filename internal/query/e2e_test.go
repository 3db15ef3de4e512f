package query_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-insights/internal/config"
	"github.com/jonathan/job-insights/internal/db/sqlite"
	"github.com/jonathan/job-insights/internal/parsing"
	"github.com/jonathan/job-insights/internal/pipeline"
	"github.com/jonathan/job-insights/internal/query"
	"github.com/jonathan/job-insights/internal/types"
)

var loadTime = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// loadSQLite runs a full load of the given sources into a fresh SQLite store.
func loadSQLite(t *testing.T, companies, postings string) (*sqlite.Store, *query.Service) {
	t.Helper()
	dir := t.TempDir()
	companiesPath := filepath.Join(dir, "Company.csv")
	postingsPath := filepath.Join(dir, "JobPosting.csv")
	require.NoError(t, os.WriteFile(companiesPath, []byte(companies), 0644))
	require.NoError(t, os.WriteFile(postingsPath, []byte(postings), 0644))

	store, err := sqlite.Open(context.Background(), filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rules, err := config.DefaultRules()
	require.NoError(t, err)
	categories, err := rules.CategorySet()
	require.NoError(t, err)

	_, err = pipeline.Run(context.Background(), store, pipeline.RunOptions{
		CompaniesPath: companiesPath,
		PostingsPath:  postingsPath,
		Policy:        parsing.MissingAsNull,
		Categories:    categories,
		Out:           discard{},
		Now:           func() time.Time { return loadTime },
	})
	require.NoError(t, err)
	return store, query.NewService(store)
}

const acmeCompanies = "companyId,companyName\n1,Acme Corp\n"

func TestEndToEnd_AcmeLinkage(t *testing.T) {
	postings := "Job id,jobUrl,postedTime,applicationsCount\n" +
		"100,https://x.io/jobs/view/senior-data-engineer-at-acme-corp-12?trk=1,3 days ago,Over 200 applicants\n"
	store, svc := loadSQLite(t, acmeCompanies, postings)
	ctx := context.Background()

	batch, err := store.ReadBatch(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batch.Jobs, 1)
	require.NotNil(t, batch.Jobs[0].CompanyID)
	assert.Equal(t, int64(1), *batch.Jobs[0].CompanyID)

	require.Len(t, batch.Postings, 1)
	p := batch.Postings[0]
	require.NotNil(t, p.PostedDate)
	assert.Equal(t, loadTime.Add(-72*time.Hour), *p.PostedDate)
	require.NotNil(t, p.ApplicationsCount)
	assert.Equal(t, int64(200), *p.ApplicationsCount)
	assert.Equal(t, "Over 200 applicants", p.ApplicationsRaw)

	counts, err := svc.Counts(ctx, types.Filter{})
	require.NoError(t, err)
	assert.Equal(t, types.Counts{Jobs: 1, Companies: 1, Postings: 1}, counts)

	dq, err := svc.DataQuality(ctx, types.Filter{})
	require.NoError(t, err)
	assert.Zero(t, dq.UnlinkedJobs)
}

func TestEndToEnd_UnparseablePostedTime(t *testing.T) {
	postings := "Job id,jobUrl,postedTime,applicationsCount\n" +
		"100,https://x.io/jobs/view/senior-data-engineer-at-acme-corp-12,3 days ago,50 applicants\n" +
		"101,https://x.io/jobs/view/barista-at-acme-corp-13,recently,7\n"
	store, svc := loadSQLite(t, acmeCompanies, postings)
	ctx := context.Background()

	batch, err := store.ReadBatch(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batch.Postings, 2)
	assert.Nil(t, batch.Postings[1].PostedDate)
	assert.Equal(t, "recently", batch.Postings[1].PostedTime)

	run, err := svc.CurrentLoad(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Warnings[types.WarnUnparsedPostedTime])

	trends, err := svc.MonthlyTrends(ctx, types.Filter{})
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, "2024-03", trends[0].Month)
	assert.Equal(t, int64(1), trends[0].Postings)

	dist, err := svc.Distribution(ctx, types.Filter{}, types.GroupSector)
	require.NoError(t, err)
	var total int64
	sum := 0.0
	for _, r := range dist {
		total += r.Count
		sum += r.Percentage
	}
	assert.Equal(t, int64(2), total)
	assert.InDelta(t, 100, sum, 0.01)

	recent, err := svc.RecentPostings(ctx, types.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(100), recent[0].JobID)
	assert.Nil(t, recent[1].PostedDate)
}

func TestEndToEnd_NoDataBeforeLoad(t *testing.T) {
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = query.NewService(store).Counts(context.Background(), types.Filter{})
	assert.ErrorIs(t, err, query.ErrNoData)
}

func TestEndToEnd_FailedLoadKeepsPriorState(t *testing.T) {
	postings := "Job id,jobUrl,postedTime,applicationsCount\n" +
		"100,https://x.io/jobs/view/dev-at-acme-corp-1,1 day ago,5\n"
	store, svc := loadSQLite(t, acmeCompanies, postings)
	ctx := context.Background()
	before, err := svc.CurrentLoad(ctx)
	require.NoError(t, err)

	dir := t.TempDir()
	companiesPath := filepath.Join(dir, "Company.csv")
	postingsPath := filepath.Join(dir, "JobPosting.csv")
	require.NoError(t, os.WriteFile(companiesPath, []byte("companyName\nAcme\n"), 0644))
	require.NoError(t, os.WriteFile(postingsPath, []byte(postings), 0644))

	rules, err := config.DefaultRules()
	require.NoError(t, err)
	categories, err := rules.CategorySet()
	require.NoError(t, err)
	_, err = pipeline.Run(ctx, store, pipeline.RunOptions{
		CompaniesPath: companiesPath, PostingsPath: postingsPath,
		Categories: categories, Out: discard{},
	})
	require.Error(t, err)

	after, err := svc.CurrentLoad(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	counts, err := svc.Counts(ctx, types.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Jobs)
}

package pipeline

import (
	"fmt"

	"github.com/jonathan/job-insights/internal/types"
)

// maxProblems caps how many violations an IntegrityError lists.
const maxProblems = 20

// Validate checks a batch before it is persisted: unique keys, a 1:1 job to
// posting relation, company references inside the batch, closed categories
// and non-negative numbers.
func Validate(batch *types.Batch) error {
	if batch == nil {
		return &IntegrityError{Problems: []string{"batch is nil"}}
	}
	var problems []string
	report := func(format string, args ...any) {
		if len(problems) < maxProblems {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	companies := make(map[int64]bool, len(batch.Companies))
	for _, c := range batch.Companies {
		if companies[c.ID] {
			report("duplicate company_id %d", c.ID)
		}
		companies[c.ID] = true
	}

	jobs := make(map[int64]bool, len(batch.Jobs))
	for _, j := range batch.Jobs {
		if jobs[j.ID] {
			report("duplicate job_id %d", j.ID)
		}
		jobs[j.ID] = true
		if j.CompanyID != nil && !companies[*j.CompanyID] {
			report("job %d references unknown company_id %d", j.ID, *j.CompanyID)
		}
		if j.ContractType == "" || j.ExperienceLevel == "" {
			report("job %d has an empty category", j.ID)
		}
		if j.SalaryRating != nil && *j.SalaryRating < 0 {
			report("job %d has a negative salary_rating", j.ID)
		}
	}

	postings := make(map[int64]bool, len(batch.Postings))
	for _, p := range batch.Postings {
		if postings[p.JobID] {
			report("job %d has more than one posting", p.JobID)
		}
		postings[p.JobID] = true
		if !jobs[p.JobID] {
			report("posting %d has no job", p.JobID)
		}
		if p.Sector == "" {
			report("posting %d has an empty sector", p.JobID)
		}
		if negative(p.ViewsCount) || negative(p.ApplicationsCount) {
			report("posting %d has a negative count", p.JobID)
		}
	}
	for id := range jobs {
		if !postings[id] {
			report("job %d has no posting", id)
		}
	}

	if len(problems) > 0 {
		return &IntegrityError{Problems: problems}
	}
	return nil
}

func negative(v *int64) bool {
	return v != nil && *v < 0
}

package ingestion

// RawCompany is a company directory row before normalization.
type RawCompany struct {
	Line     int
	ID       string
	Name     string
	URL      string
	Location string
	Sector   string
}

// RawPosting is a job posting row before normalization.
type RawPosting struct {
	Line              int
	JobID             string
	JobURL            string
	ApplyURL          string
	ApplyType         string
	PostedTime        string
	ApplicationsCount string
	ViewsCount        string
	SalaryRating      string
	ContractType      string
	ExperienceLevel   string
}

// RawJob is an optional job attribute row before normalization.
type RawJob struct {
	Line            int
	JobID           string
	ContractType    string
	ExperienceLevel string
	SalaryRating    string
}

// Companies decodes a companies table.
func (t *Table) Companies() []RawCompany {
	out := make([]RawCompany, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, RawCompany{
			Line:     r.Line,
			ID:       r.Get(ColCompanyID),
			Name:     r.Get(ColCompanyName),
			URL:      r.Get(ColCompanyURL),
			Location: r.Get(ColLocation),
			Sector:   r.Get(ColSector),
		})
	}
	return out
}

// Postings decodes a job postings table. PostedTime and ApplicationsCount
// keep their raw text apart from trimming.
func (t *Table) Postings() []RawPosting {
	out := make([]RawPosting, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, RawPosting{
			Line:              r.Line,
			JobID:             r.Get(ColJobID),
			JobURL:            r.Get(ColJobURL),
			ApplyURL:          r.Get(ColApplyURL),
			ApplyType:         r.Get(ColApplyType),
			PostedTime:        r.Get(ColPostedTime),
			ApplicationsCount: r.Get(ColApplicationsCount),
			ViewsCount:        r.Get(ColViewsCount),
			SalaryRating:      r.Get(ColSalaryRating),
			ContractType:      r.Get(ColContractType),
			ExperienceLevel:   r.Get(ColExperienceLevel),
		})
	}
	return out
}

// Jobs decodes a jobs table.
func (t *Table) Jobs() []RawJob {
	out := make([]RawJob, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, RawJob{
			Line:            r.Line,
			JobID:           r.Get(ColJobID),
			ContractType:    r.Get(ColContractType),
			ExperienceLevel: r.Get(ColExperienceLevel),
			SalaryRating:    r.Get(ColSalaryRating),
		})
	}
	return out
}

package ingestion

// Logical source names.
const (
	FileCompanies = "companies"
	FilePostings  = "job_postings"
	FileJobs      = "jobs"
)

// Canonical column names.
const (
	ColCompanyID         = "company_id"
	ColCompanyName       = "company_name"
	ColCompanyURL        = "company_url"
	ColLocation          = "location"
	ColSector            = "sector"
	ColJobID             = "job_id"
	ColJobURL            = "job_url"
	ColApplyURL          = "apply_url"
	ColApplyType         = "apply_type"
	ColPostedTime        = "posted_time"
	ColApplicationsCount = "applications_count"
	ColViewsCount        = "views_count"
	ColSalaryRating      = "salary_rating"
	ColContractType      = "contract_type"
	ColExperienceLevel   = "experience_level"
)

// Column is one logical column and the header spellings that map to it.
type Column struct {
	Name     string
	Aliases  []string
	Required bool
}

// Schema is the expected column set of one source file.
type Schema struct {
	File    string
	Columns []Column
}

// CompaniesSchema is the company directory layout.
var CompaniesSchema = Schema{
	File: FileCompanies,
	Columns: []Column{
		{Name: ColCompanyID, Aliases: []string{"companyId"}, Required: true},
		{Name: ColCompanyName, Aliases: []string{"companyName"}, Required: true},
		{Name: ColCompanyURL, Aliases: []string{"companyUrl"}},
		{Name: ColLocation},
		{Name: ColSector},
	},
}

// PostingsSchema is the job posting layout.
var PostingsSchema = Schema{
	File: FilePostings,
	Columns: []Column{
		{Name: ColJobID, Aliases: []string{"Job id", "jobId"}, Required: true},
		{Name: ColJobURL, Aliases: []string{"jobUrl"}, Required: true},
		{Name: ColPostedTime, Aliases: []string{"postedTime"}, Required: true},
		{Name: ColApplicationsCount, Aliases: []string{"applicationsCount"}, Required: true},
		{Name: ColApplyURL, Aliases: []string{"applyUrl"}},
		{Name: ColApplyType, Aliases: []string{"applyType"}},
		{Name: ColViewsCount, Aliases: []string{"viewsCount"}},
		{Name: ColSalaryRating, Aliases: []string{"salaryRating"}},
		{Name: ColContractType, Aliases: []string{"contractType"}},
		{Name: ColExperienceLevel, Aliases: []string{"experienceLevel"}},
	},
}

// JobsSchema is the optional job attribute layout.
var JobsSchema = Schema{
	File: FileJobs,
	Columns: []Column{
		{Name: ColJobID, Aliases: []string{"jobId", "Job id"}, Required: true},
		{Name: ColContractType, Aliases: []string{"contractType"}},
		{Name: ColExperienceLevel, Aliases: []string{"experienceLevel"}},
		{Name: ColSalaryRating, Aliases: []string{"salaryRating"}},
	},
}

package scraper

// Built-in defaults applied when neither the query nor the global options set a field.
const (
	DefaultLimit     = 25
	DefaultApplyLink = true
)

// DefaultLocations is used when no locations are configured anywhere.
var DefaultLocations = []string{"Worldwide"}

// QuerySpec describes one search request. It is treated as immutable once
// submitted to an orchestrator.
type QuerySpec struct {
	Query   string
	Options Options
}

// Options is the shape shared by per-query overrides and global options.
// A nil pointer or nil slice means "not set"; an empty non-nil slice is set.
type Options struct {
	Locations   []string
	Limit       *int
	Filters     *Filters
	ApplyLink   *bool
	Description DescriptionExtractor
}

// Filters narrows a search. Slices are replaced wholesale on override.
type Filters struct {
	Type            []TypeFilter
	ExperienceLevel []ExperienceLevelFilter
	Time            *TimeFilter
	Relevance       *RelevanceFilter
}

// EffectiveOptions is the fully resolved option set for one query.
type EffectiveOptions struct {
	Locations   []string
	Limit       int
	Filters     EffectiveFilters
	ApplyLink   bool
	Description DescriptionExtractor
}

// EffectiveFilters is the resolved filter block of EffectiveOptions.
type EffectiveFilters struct {
	Type            []TypeFilter
	ExperienceLevel []ExperienceLevelFilter
	Time            TimeFilter
	Relevance       RelevanceFilter
}

// JobRecord is one scraped posting.
type JobRecord struct {
	Query           string   `json:"query"`
	Location        string   `json:"location"`
	JobID           string   `json:"job_id"`
	Title           string   `json:"title"`
	Company         string   `json:"company,omitempty"`
	CompanyLink     string   `json:"company_link,omitempty"`
	CompanyImgLink  string   `json:"company_img_link,omitempty"`
	Place           string   `json:"place"`
	Date            string   `json:"date"`
	Link            string   `json:"link"`
	ApplyLink       string   `json:"apply_link,omitempty"`
	Insights        []string `json:"insights"`
	Description     string   `json:"description"`
	DescriptionHTML string   `json:"description_html"`
}

// Metrics holds session-wide counters. Values never decrease within a session.
type Metrics struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Missed    int `json:"missed"`
}

// PageMetrics is the payload of a metrics event: the session counters as of
// the end of one result page.
type PageMetrics struct {
	Metrics
	Query    string `json:"query"`
	Location string `json:"location"`
	Page     int    `json:"page"`
}

// IntPtr returns a pointer to v; handy when building Options literals.
func IntPtr(v int) *int {
	return &v
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}

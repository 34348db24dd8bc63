package config

import (
	"errors"

	"github.com/JakeFAU/realtime-job-scraper/internal/extractor/linkedin"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// OptionsConfig mirrors scraper.Options for decoding. A missing key decodes to
// nil and stays "not set"; an explicit empty list is kept as set.
type OptionsConfig struct {
	Locations []string       `mapstructure:"locations" json:"locations,omitempty"`
	Limit     *int           `mapstructure:"limit" json:"limit,omitempty"`
	Filters   *FiltersConfig `mapstructure:"filters" json:"filters,omitempty"`
	ApplyLink *bool          `mapstructure:"apply_link" json:"apply_link,omitempty"`
	// DescriptionSelector selects the description node on the detail page.
	DescriptionSelector string `mapstructure:"description_selector" json:"description_selector,omitempty"`
}

// FiltersConfig holds filters by symbolic name, e.g. type: [FULL_TIME].
type FiltersConfig struct {
	Type            []string `mapstructure:"type" json:"type,omitempty"`
	ExperienceLevel []string `mapstructure:"experience_level" json:"experience_level,omitempty"`
	Time            *string  `mapstructure:"time" json:"time,omitempty"`
	Relevance       *string  `mapstructure:"relevance" json:"relevance,omitempty"`
}

// ToQuerySpec converts a query entry.
func (q QueryConfig) ToQuerySpec() (scraper.QuerySpec, error) {
	opts, err := q.Options.ToOptions()
	if err != nil {
		var optErr *scraper.InvalidOptionError
		if errors.As(err, &optErr) && optErr.Query == "" {
			optErr.Query = q.Query
		}
		return scraper.QuerySpec{}, err
	}
	return scraper.QuerySpec{Query: q.Query, Options: opts}, nil
}

// ToOptions converts the decoded block, resolving filter names.
func (o OptionsConfig) ToOptions() (scraper.Options, error) {
	out := scraper.Options{
		Limit:     o.Limit,
		ApplyLink: o.ApplyLink,
	}
	if o.Locations != nil {
		out.Locations = append([]string{}, o.Locations...)
	}
	if o.DescriptionSelector != "" {
		out.Description = linkedin.SelectorDescription{Selector: o.DescriptionSelector}
	}
	if o.Filters == nil {
		return out, nil
	}
	filters, err := o.Filters.toFilters()
	if err != nil {
		return scraper.Options{}, err
	}
	out.Filters = filters
	return out, nil
}

func (f FiltersConfig) toFilters() (*scraper.Filters, error) {
	out := &scraper.Filters{}
	for _, name := range f.Type {
		v, err := scraper.ParseTypeFilter(name)
		if err != nil {
			return nil, err
		}
		out.Type = append(out.Type, v)
	}
	for _, name := range f.ExperienceLevel {
		v, err := scraper.ParseExperienceLevelFilter(name)
		if err != nil {
			return nil, err
		}
		out.ExperienceLevel = append(out.ExperienceLevel, v)
	}
	if f.Time != nil {
		v, err := scraper.ParseTimeFilter(*f.Time)
		if err != nil {
			return nil, err
		}
		out.Time = &v
	}
	if f.Relevance != nil {
		v, err := scraper.ParseRelevanceFilter(*f.Relevance)
		if err != nil {
			return nil, err
		}
		out.Relevance = &v
	}
	return out, nil
}

package scraper

import (
	"fmt"
	"strings"
)

// TypeFilter restricts results by employment type.
type TypeFilter string

// Employment type filters, valued as LinkedIn's f_JT parameter.
const (
	TypeFullTime   TypeFilter = "F"
	TypePartTime   TypeFilter = "P"
	TypeTemporary  TypeFilter = "T"
	TypeContract   TypeFilter = "C"
	TypeInternship TypeFilter = "I"
	TypeVolunteer  TypeFilter = "V"
	TypeOther      TypeFilter = "O"
)

// ExperienceLevelFilter restricts results by seniority.
type ExperienceLevelFilter string

// Experience level filters, valued as LinkedIn's f_E parameter.
const (
	ExperienceInternship ExperienceLevelFilter = "1"
	ExperienceEntryLevel ExperienceLevelFilter = "2"
	ExperienceAssociate  ExperienceLevelFilter = "3"
	ExperienceMidSenior  ExperienceLevelFilter = "4"
	ExperienceDirector   ExperienceLevelFilter = "5"
	ExperienceExecutive  ExperienceLevelFilter = "6"
)

// TimeFilter restricts results by posting age.
type TimeFilter string

// Posting age filters, valued as LinkedIn's f_TPR parameter.
const (
	TimeAny   TimeFilter = ""
	TimeDay   TimeFilter = "r86400"
	TimeWeek  TimeFilter = "r604800"
	TimeMonth TimeFilter = "r2592000"
)

// RelevanceFilter selects the result ordering.
type RelevanceFilter string

// Result orderings, valued as LinkedIn's sortBy parameter.
const (
	RelevanceRelevant RelevanceFilter = "R"
	RelevanceRecent   RelevanceFilter = "DD"
)

var typeFilterNames = map[string]TypeFilter{
	"FULL_TIME":  TypeFullTime,
	"PART_TIME":  TypePartTime,
	"TEMPORARY":  TypeTemporary,
	"CONTRACT":   TypeContract,
	"INTERNSHIP": TypeInternship,
	"VOLUNTEER":  TypeVolunteer,
	"OTHER":      TypeOther,
}

var experienceFilterNames = map[string]ExperienceLevelFilter{
	"INTERNSHIP":  ExperienceInternship,
	"ENTRY_LEVEL": ExperienceEntryLevel,
	"ASSOCIATE":   ExperienceAssociate,
	"MID_SENIOR":  ExperienceMidSenior,
	"DIRECTOR":    ExperienceDirector,
	"EXECUTIVE":   ExperienceExecutive,
}

var timeFilterNames = map[string]TimeFilter{
	"ANY":   TimeAny,
	"DAY":   TimeDay,
	"WEEK":  TimeWeek,
	"MONTH": TimeMonth,
}

var relevanceFilterNames = map[string]RelevanceFilter{
	"RELEVANT": RelevanceRelevant,
	"RECENT":   RelevanceRecent,
}

// ParseTypeFilter maps a symbolic name such as "FULL_TIME" to its filter.
func ParseTypeFilter(name string) (TypeFilter, error) {
	return parseFilter(typeFilterNames, "filters.type", name)
}

// ParseExperienceLevelFilter maps a symbolic name such as "MID_SENIOR" to its filter.
func ParseExperienceLevelFilter(name string) (ExperienceLevelFilter, error) {
	return parseFilter(experienceFilterNames, "filters.experience_level", name)
}

// ParseTimeFilter maps a symbolic name such as "WEEK" to its filter.
func ParseTimeFilter(name string) (TimeFilter, error) {
	return parseFilter(timeFilterNames, "filters.time", name)
}

// ParseRelevanceFilter maps a symbolic name such as "RECENT" to its filter.
func ParseRelevanceFilter(name string) (RelevanceFilter, error) {
	return parseFilter(relevanceFilterNames, "filters.relevance", name)
}

func parseFilter[T ~string](names map[string]T, field, name string) (T, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if v, ok := names[key]; ok {
		return v, nil
	}
	var zero T
	return zero, &InvalidOptionError{Field: field, Reason: fmt.Sprintf("unknown value %q", name)}
}

// Valid reports whether f is a known employment type.
func (f TypeFilter) Valid() bool {
	return containsValue(typeFilterNames, f)
}

// Valid reports whether f is a known experience level.
func (f ExperienceLevelFilter) Valid() bool {
	return containsValue(experienceFilterNames, f)
}

// Valid reports whether f is a known posting age.
func (f TimeFilter) Valid() bool {
	return containsValue(timeFilterNames, f)
}

// Valid reports whether f is a known ordering.
func (f RelevanceFilter) Valid() bool {
	return containsValue(relevanceFilterNames, f)
}

func containsValue[T comparable](names map[string]T, v T) bool {
	for _, known := range names {
		if known == v {
			return true
		}
	}
	return false
}

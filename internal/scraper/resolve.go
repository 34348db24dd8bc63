package scraper

import (
	"errors"
	"fmt"
	"strings"
)

// Resolve merges global options with a per-query override. Any field set on
// the override replaces the global one wholesale; fields set on neither fall
// back to the built-in defaults. Resolve has no side effects and never aliases
// the slices of its inputs.
func Resolve(global, override Options) (EffectiveOptions, error) {
	if err := validateOptions(global); err != nil {
		return EffectiveOptions{}, err
	}
	if err := validateOptions(override); err != nil {
		return EffectiveOptions{}, err
	}

	eff := EffectiveOptions{
		Locations: cloneSlice(DefaultLocations),
		Limit:     DefaultLimit,
		Filters:   EffectiveFilters{Time: TimeAny, Relevance: RelevanceRelevant},
		ApplyLink: DefaultApplyLink,
	}
	for _, layer := range []Options{global, override} {
		if layer.Locations != nil {
			eff.Locations = cloneSlice(layer.Locations)
		}
		if layer.Limit != nil {
			eff.Limit = *layer.Limit
		}
		if layer.Filters != nil {
			eff.Filters = resolveFilters(*layer.Filters)
		}
		if layer.ApplyLink != nil {
			eff.ApplyLink = *layer.ApplyLink
		}
		if layer.Description != nil {
			eff.Description = layer.Description
		}
	}
	return eff, nil
}

// ResolveQuery validates spec and resolves its effective options.
func ResolveQuery(global Options, spec QuerySpec) (EffectiveOptions, error) {
	if strings.TrimSpace(spec.Query) == "" {
		return EffectiveOptions{}, &InvalidOptionError{Field: "query", Reason: "must not be empty"}
	}
	eff, err := Resolve(global, spec.Options)
	if err != nil {
		var optErr *InvalidOptionError
		if errors.As(err, &optErr) {
			optErr.Query = spec.Query
		}
		return EffectiveOptions{}, err
	}
	return eff, nil
}

func resolveFilters(f Filters) EffectiveFilters {
	out := EffectiveFilters{
		Type:            cloneSlice(f.Type),
		ExperienceLevel: cloneSlice(f.ExperienceLevel),
		Time:            TimeAny,
		Relevance:       RelevanceRelevant,
	}
	if f.Time != nil {
		out.Time = *f.Time
	}
	if f.Relevance != nil {
		out.Relevance = *f.Relevance
	}
	return out
}

func validateOptions(o Options) error {
	if o.Limit != nil && *o.Limit <= 0 {
		return &InvalidOptionError{Field: "limit", Reason: fmt.Sprintf("must be a positive integer, got %d", *o.Limit)}
	}
	for _, loc := range o.Locations {
		if strings.TrimSpace(loc) == "" {
			return &InvalidOptionError{Field: "locations", Reason: "must not contain blank entries"}
		}
	}
	if o.Filters == nil {
		return nil
	}
	for _, t := range o.Filters.Type {
		if !t.Valid() {
			return &InvalidOptionError{Field: "filters.type", Reason: fmt.Sprintf("unknown value %q", t)}
		}
	}
	for _, e := range o.Filters.ExperienceLevel {
		if !e.Valid() {
			return &InvalidOptionError{Field: "filters.experience_level", Reason: fmt.Sprintf("unknown value %q", e)}
		}
	}
	if o.Filters.Time != nil && !o.Filters.Time.Valid() {
		return &InvalidOptionError{Field: "filters.time", Reason: fmt.Sprintf("unknown value %q", *o.Filters.Time)}
	}
	if o.Filters.Relevance != nil && !o.Filters.Relevance.Valid() {
		return &InvalidOptionError{Field: "filters.relevance", Reason: fmt.Sprintf("unknown value %q", *o.Filters.Relevance)}
	}
	return nil
}

func cloneSlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}

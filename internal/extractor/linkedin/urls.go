package linkedin

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

const (
	// DefaultBaseURL is the public LinkedIn host serving the guest job API.
	DefaultBaseURL = "https://www.linkedin.com"
	// PageSize is the number of cards the guest search endpoint returns per page.
	PageSize = 25
	// maxStart is the highest offset the guest search endpoint honors.
	maxStart = 1000

	searchPath = "/jobs-guest/jobs/api/seeMoreJobPostings/search"
	detailPath = "/jobs-guest/jobs/api/jobPosting/"
)

// SearchURL builds the guest search URL for one result page.
func SearchURL(base string, req scraper.PageRequest) string {
	q := url.Values{}
	q.Set("keywords", req.Query)
	q.Set("location", req.Location)
	q.Set("start", strconv.Itoa(req.Page*PageSize))
	f := req.Options.Filters
	if len(f.Type) > 0 {
		parts := make([]string, len(f.Type))
		for i, t := range f.Type {
			parts[i] = string(t)
		}
		q.Set("f_JT", strings.Join(parts, ","))
	}
	if len(f.ExperienceLevel) > 0 {
		parts := make([]string, len(f.ExperienceLevel))
		for i, e := range f.ExperienceLevel {
			parts[i] = string(e)
		}
		q.Set("f_E", strings.Join(parts, ","))
	}
	if f.Time != scraper.TimeAny {
		q.Set("f_TPR", string(f.Time))
	}
	if f.Relevance != "" {
		q.Set("sortBy", string(f.Relevance))
	}
	return strings.TrimRight(base, "/") + searchPath + "?" + q.Encode()
}

// DetailURL builds the guest job-posting URL for jobID.
func DetailURL(base, jobID string) string {
	return strings.TrimRight(base, "/") + detailPath + url.PathEscape(jobID)
}

// jobIDFromLink extracts the trailing numeric id from a /jobs/view/ link such
// as https://www.linkedin.com/jobs/view/software-engineer-at-acme-3701234567?refId=x.
func jobIDFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	segment := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	if i := strings.LastIndex(segment, "-"); i >= 0 {
		segment = segment[i+1:]
	}
	if _, err := strconv.ParseUint(segment, 10, 64); err != nil {
		return ""
	}
	return segment
}

// jobIDFromURN extracts the id from "urn:li:jobPosting:3701234567".
func jobIDFromURN(urn string) string {
	urn = strings.TrimSpace(urn)
	if !strings.HasPrefix(urn, "urn:li:jobPosting:") {
		return ""
	}
	return strings.TrimPrefix(urn, "urn:li:jobPosting:")
}

// externalApplyURL unwraps LinkedIn's redirect link to the employer's site.
func externalApplyURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("url"); target != "" {
		return target
	}
	return raw
}

// stripTracking drops query and fragment from a LinkedIn link.
func stripTracking(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

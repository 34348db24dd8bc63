package linkedin

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// parseCards reads the job cards of a guest search page in document order.
func parseCards(body []byte) ([]scraper.JobRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	var jobs []scraper.JobRecord
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if li.ParentsFiltered("li").Length() > 0 {
			return
		}
		card := li.Find(".base-card, .base-search-card, .job-search-card").First()
		if card.Length() == 0 {
			card = li
		}
		link, _ := card.Find("a.base-card__full-link").First().Attr("href")
		if link == "" {
			link, _ = card.Find("a[href*='/jobs/view/']").First().Attr("href")
		}
		urn, _ := card.Attr("data-entity-urn")
		id := jobIDFromURN(urn)
		if id == "" {
			id = jobIDFromLink(link)
		}
		title := cleanText(card.Find(".base-search-card__title").First().Text())
		if id == "" && title == "" {
			return
		}

		companySel := card.Find(".base-search-card__subtitle").First()
		companyLink, _ := companySel.Find("a").First().Attr("href")
		img := card.Find("img").First()
		imgLink, _ := img.Attr("data-delayed-url")
		if imgLink == "" {
			imgLink, _ = img.Attr("src")
		}
		date, _ := card.Find("time").First().Attr("datetime")

		insights := []string{}
		card.Find(".job-search-card__salary-info, .job-posting-benefits__text").Each(func(_ int, s *goquery.Selection) {
			if text := cleanText(s.Text()); text != "" {
				insights = append(insights, text)
			}
		})

		jobs = append(jobs, scraper.JobRecord{
			JobID:          id,
			Title:          title,
			Company:        cleanText(companySel.Text()),
			CompanyLink:    stripTracking(companyLink),
			CompanyImgLink: imgLink,
			Place:          cleanText(card.Find(".job-search-card__location").First().Text()),
			Date:           strings.TrimSpace(date),
			Link:           stripTracking(link),
			Insights:       insights,
		})
	})
	return jobs, nil
}

type detail struct {
	applyLink string
	criteria  []string
}

// parseDetail reads the apply link and the job criteria of a guest job posting.
func parseDetail(body []byte) (detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return detail{}, fmt.Errorf("parse detail page: %w", err)
	}
	var out detail
	if code := doc.Find("code#applyUrl").First(); code.Length() > 0 {
		raw, _ := code.Html()
		out.applyLink = unwrapComment(raw)
	}
	if out.applyLink == "" {
		href, _ := doc.Find("a.apply-button, a[data-tracking-control-name*='apply']").First().Attr("href")
		out.applyLink = href
	}
	if out.applyLink != "" {
		out.applyLink = externalApplyURL(out.applyLink)
	}
	doc.Find(".description__job-criteria-item").Each(func(_ int, item *goquery.Selection) {
		name := cleanText(item.Find(".description__job-criteria-subheader").Text())
		value := cleanText(item.Find(".description__job-criteria-text").Text())
		switch {
		case name != "" && value != "":
			out.criteria = append(out.criteria, name+": "+value)
		case value != "":
			out.criteria = append(out.criteria, value)
		}
	})
	return out, nil
}

// unwrapComment turns `<!--"https://x"-->` into https://x.
func unwrapComment(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<!--")
	raw = strings.TrimSuffix(raw, "-->")
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	return html.UnescapeString(raw)
}

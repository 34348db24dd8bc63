package linkedin

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// DefaultDescriptionSelector matches the description block of a guest job posting.
const DefaultDescriptionSelector = ".show-more-less-html__markup"

// SelectorDescription extracts the description from the first element
// matching Selector. Text has whitespace collapsed.
type SelectorDescription struct {
	Selector string
}

// ExtractDescription implements scraper.DescriptionExtractor.
func (s SelectorDescription) ExtractDescription(page scraper.DetailPage) (scraper.Description, error) {
	selector := s.Selector
	if strings.TrimSpace(selector) == "" {
		selector = DefaultDescriptionSelector
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return scraper.Description{}, fmt.Errorf("parse detail page: %w", err)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return scraper.Description{}, fmt.Errorf("description selector %q matched nothing", selector)
	}
	markup, err := sel.Html()
	if err != nil {
		return scraper.Description{}, fmt.Errorf("render description: %w", err)
	}
	return scraper.Description{
		Text: cleanText(sel.Text()),
		HTML: strings.TrimSpace(markup),
	}, nil
}

func cleanText(value string) string {
	value = html.UnescapeString(value)
	return strings.Join(strings.Fields(value), " ")
}

// Package extractor evaluates rule sets against fetched HTML.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// Goquery implements scrape.Extractor on top of goquery documents.
type Goquery struct{}

// New returns a goquery-backed extractor.
func New() *Goquery {
	return &Goquery{}
}

// Extract applies the rule set to the page body. Items are selected with
// the list selector; an empty list selector treats the whole document as
// a single item. Rows whose fields are all empty are dropped.
func (g *Goquery) Extract(rules scrape.RuleSet, pageURL string, body []byte) (scrape.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return scrape.PageResult{}, fmt.Errorf("parse document: %w", err)
	}

	var items *goquery.Selection
	if rules.ListSelector == "" {
		items = doc.Selection
	} else {
		items = doc.Find(rules.ListSelector)
	}

	result := scrape.PageResult{}
	items.Each(func(_ int, item *goquery.Selection) {
		fields := extractFields(rules.Fields, item)
		if len(fields) == 0 {
			return
		}
		result.Fields = append(result.Fields, fields)
		if rules.DetailSelector != "" {
			result.DetailURLs = append(result.DetailURLs, detailURL(item, rules.DetailSelector, pageURL))
		}
	})

	if rules.NextPageSelector != "" {
		next, err := nextPageURL(doc, rules.NextPageSelector, pageURL)
		if err != nil {
			return scrape.PageResult{}, err
		}
		result.NextPageURL = next
	}
	return result, nil
}

func extractFields(rules []scrape.FieldRule, item *goquery.Selection) map[string]string {
	fields := make(map[string]string, len(rules))
	empty := true
	for _, rule := range rules {
		value := fieldValue(rule, item)
		fields[rule.Name] = value
		if value != "" {
			empty = false
		}
	}
	if empty {
		return nil
	}
	return fields
}

func fieldValue(rule scrape.FieldRule, item *goquery.Selection) string {
	target := item
	if rule.Selector != "" {
		target = item.Find(rule.Selector).First()
	}
	var value string
	if rule.Attr != "" {
		value, _ = target.Attr(rule.Attr)
	} else {
		value = target.Text()
	}
	value = collapseSpace(value)
	if rule.TrimPrefix != "" {
		value = strings.TrimSpace(strings.TrimPrefix(value, rule.TrimPrefix))
	}
	return value
}

// detailURL resolves the item's detail link against the page URL. It
// returns "" when the item has no usable link.
func detailURL(item *goquery.Selection, selector, pageURL string) string {
	link := item.Find(selector).First()
	if link.Length() == 0 {
		return ""
	}
	href, ok := link.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func nextPageURL(doc *goquery.Document, selector, pageURL string) (string, error) {
	link := doc.Find(selector).First()
	if link.Length() == 0 {
		return "", nil
	}
	href, ok := link.Attr("href")
	href = strings.TrimSpace(href)
	// Fragment-only links point back at the same page.
	if !ok || href == "" || strings.HasPrefix(href, "#") {
		return "", nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url %q: %w", pageURL, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse next page href %q: %w", href, err)
	}
	resolved := base.ResolveReference(ref)
	if resolved.String() == base.String() {
		return "", nil
	}
	return resolved.String(), nil
}

// collapseSpace trims the value and squeezes interior whitespace runs to
// a single space, matching how browsers render text nodes.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

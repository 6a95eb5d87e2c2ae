package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// minContainerText is the point at which parent-widening stops: once a card's
// container holds this much text, it is assumed to include the event name and
// date line.
const minContainerText = 30

const maxWidenDepth = 4

// domCandidate is one anchor/card hit from the HTML fallback scan.
type domCandidate struct {
	URL   string
	Text  string
	Image string
}

// scanAnchors is the HTML fallback used when JSON extraction finds nothing.
// It collects anchors matching the source's selector and widens each anchor's
// container upward until enough text content surrounds it.
func scanAnchors(doc *goquery.Document, selector, baseURL string) []domCandidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var candidates []domCandidate

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		resolved.Fragment = ""
		link := resolved.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		container := s
		text := normalizeText(container.Text())
		for depth := 0; depth < maxWidenDepth && len(text) < minContainerText; depth++ {
			parent := container.Parent()
			if parent.Length() == 0 {
				break
			}
			container = parent
			text = normalizeText(container.Text())
		}

		image := ""
		if img := container.Find("img").First(); img.Length() > 0 {
			if src, ok := img.Attr("src"); ok {
				image = src
			} else if src, ok := img.Attr("data-src"); ok {
				image = src
			}
		}

		candidates = append(candidates, domCandidate{URL: link, Text: text, Image: image})
	})

	return candidates
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|[A-Z][a-z]{2,8} \d{1,2},? \d{4}|[A-Z][a-z]{2,8} \d{1,2}`)
	yearPattern = regexp.MustCompile(`\d{4}`)
)

// findDate scans widened card text for a date-looking fragment. Card text on
// both sources mixes the name with a human-formatted date line, so this is a
// best-effort pull, not a parse of a known format.
func findDate(text string, now time.Time) (time.Time, bool) {
	match := datePattern.FindString(text)
	if match == "" {
		return time.Time{}, false
	}
	// Month-day fragments without a year refer to the current year.
	if !yearPattern.MatchString(match) {
		match = match + ", " + now.Format("2006")
	}
	parsed, err := dateparse.ParseAny(match)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// firstLine heuristically pulls the event name out of widened container text:
// the leading run of characters before the text turns into date/location
// noise, capped at the canonical name length.
func firstLine(text string, max int) string {
	if utf8.RuneCountInString(text) > max {
		text = string([]rune(text)[:max])
		if cut := strings.LastIndex(text, " "); cut > 0 {
			text = text[:cut]
		}
	}
	return strings.TrimSpace(text)
}

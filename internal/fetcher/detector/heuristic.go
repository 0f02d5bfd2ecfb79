// Package detector decides when a plain fetch needs a headless refetch.
package detector

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// Heuristic promotes a fetch when the probed HTML cannot satisfy the
// project's extraction rules without running JavaScript.
type Heuristic struct {
	// ThinBodyBytes is the size under which a script-heavy page counts as
	// an app shell rather than rendered content.
	ThinBodyBytes int
}

// NewHeuristic creates a detector. A zero threshold selects the default.
func NewHeuristic(thinBodyBytes int) *Heuristic {
	if thinBodyBytes <= 0 {
		thinBodyBytes = 2048
	}
	return &Heuristic{ThinBodyBytes: thinBodyBytes}
}

// mountPoints are element patterns frameworks render into client-side. A
// served page consisting of one of these is an unhydrated shell.
var mountPoints = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("data-server-rendered"),
}

// ShouldPromote reports whether the probe response needs a headless
// refetch for the given project rules. When the rules name a list
// selector, the decision is whether the served HTML already contains
// matching elements; otherwise generic app-shell signals decide.
func (h *Heuristic) ShouldPromote(probe scrape.FetchResponse, rules scrape.RuleSet) bool {
	if probe.StatusCode != 200 {
		return false
	}
	if len(probe.Body) == 0 {
		return true
	}
	if rules.ListSelector != "" {
		if present, ok := selectorPresent(probe.Body, rules.ListSelector); ok {
			return !present
		}
	}
	return h.looksLikeAppShell(probe.Body)
}

// selectorPresent reports whether the selector matches anything in the
// document. ok is false when the document or selector cannot be parsed,
// in which case the caller falls back to generic signals.
func selectorPresent(body []byte, selector string) (present, ok bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, false
	}
	defer func() {
		// goquery panics on invalid selector syntax.
		if recover() != nil {
			present, ok = false, false
		}
	}()
	return doc.Find(selector).Length() > 0, true
}

func (h *Heuristic) looksLikeAppShell(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range mountPoints {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return len(body) < h.ThinBodyBytes && scriptShare(lower) >= 25
}

// scriptShare returns the percentage of the document occupied by script
// elements, counting an unterminated script through end of input.
func scriptShare(lower []byte) int {
	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
	)
	total := len(lower)
	if total == 0 {
		return 0
	}

	covered := 0
	for pos := 0; pos < total; {
		start := bytes.Index(lower[pos:], openTag)
		if start == -1 {
			break
		}
		start += pos

		end := bytes.Index(lower[start:], closeTag)
		if end == -1 {
			covered += total - start
			break
		}
		end += start + len(closeTag)
		covered += end - start
		pos = end
	}
	return covered * 100 / total
}

package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrapekit/scrapper/internal/scrape"
)

func TestShouldPromoteEmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scrape.FetchResponse{StatusCode: 200}
	require.True(t, h.ShouldPromote(resp, scrape.RuleSet{}))
}

func TestShouldPromoteWhenListSelectorMissing(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	rules := scrape.RuleSet{ListSelector: "div.card"}
	resp := scrape.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><main>loading</main></body></html>`),
	}
	require.True(t, h.ShouldPromote(resp, rules))
}

func TestShouldNotPromoteWhenListSelectorPresent(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	rules := scrape.RuleSet{ListSelector: "div.card"}
	// The selector matching overrides the framework mount point.
	resp := scrape.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><div id="root"><div class="card"><h3>Sunrise Towers</h3></div></div></body></html>`),
	}
	require.False(t, h.ShouldPromote(resp, rules))
}

func TestShouldPromoteMountPoints(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	for _, body := range []string{
		`<div id="__next"></div>`,
		`<div id="root"></div>`,
		`<app-root ng-version="17.0.1"></app-root>`,
	} {
		resp := scrape.FetchResponse{StatusCode: 200, Body: []byte(body)}
		require.True(t, h.ShouldPromote(resp, scrape.RuleSet{}), body)
	}
}

func TestShouldPromoteThinScriptHeavyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	resp := scrape.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(resp, scrape.RuleSet{}))
}

func TestShouldNotPromoteStaticContent(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scrape.FetchResponse{
		StatusCode: 200,
		Body:       []byte("<html><body>" + strings.Repeat("<p>static content</p>", 50) + "</body></html>"),
	}
	require.False(t, h.ShouldPromote(resp, scrape.RuleSet{}))
}

func TestShouldNotPromoteNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scrape.FetchResponse{StatusCode: 404, Body: []byte("not found")}
	require.False(t, h.ShouldPromote(resp, scrape.RuleSet{ListSelector: "div.card"}))
}

func TestScriptShareCountsUnterminatedScript(t *testing.T) {
	t.Parallel()

	body := []byte(`<p>x</p><script>never closed`)
	require.Greater(t, scriptShare(body), 25)
}

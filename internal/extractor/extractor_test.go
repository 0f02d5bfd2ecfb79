package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrapekit/scrapper/internal/scrape"
)

const listingPage = `
<html><body>
  <div class="card">
    <h3 class="title">  Sunrise   Towers </h3>
    <p class="dev">Developer: Apex Homes</p>
    <a class="cert" href="/certs/101.pdf">Certificate</a>
  </div>
  <div class="card">
    <h3 class="title">Lake View</h3>
    <p class="dev">Developer: Blue Stone</p>
    <a class="cert" href="https://files.example.com/102.pdf">Certificate</a>
  </div>
  <div class="card"></div>
  <nav><a class="next" href="/projects?page=2">Next</a></nav>
</body></html>`

func listingRules() scrape.RuleSet {
	return scrape.RuleSet{
		ListSelector: "div.card",
		Fields: []scrape.FieldRule{
			{Name: "project_name", Selector: "h3.title"},
			{Name: "developer", Selector: "p.dev", TrimPrefix: "Developer:"},
			{Name: "certificate_link", Selector: "a.cert", Attr: "href"},
		},
		NextPageSelector: "nav a.next",
	}
}

func TestExtractListing(t *testing.T) {
	t.Parallel()

	result, err := New().Extract(listingRules(), "https://example.com/projects", []byte(listingPage))
	require.NoError(t, err)
	require.Len(t, result.Fields, 2)

	first := result.Fields[0]
	require.Equal(t, "Sunrise Towers", first["project_name"])
	require.Equal(t, "Apex Homes", first["developer"])
	require.Equal(t, "/certs/101.pdf", first["certificate_link"])

	second := result.Fields[1]
	require.Equal(t, "Lake View", second["project_name"])
	require.Equal(t, "https://files.example.com/102.pdf", second["certificate_link"])

	require.Equal(t, "https://example.com/projects?page=2", result.NextPageURL)
}

func TestExtractWithoutListSelector(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><h1 id="headline">Launch Report</h1></body></html>`)
	rules := scrape.RuleSet{
		Fields: []scrape.FieldRule{{Name: "headline", Selector: "#headline"}},
	}

	result, err := New().Extract(rules, "https://example.com", body)
	require.NoError(t, err)
	require.Len(t, result.Fields, 1)
	require.Equal(t, "Launch Report", result.Fields[0]["headline"])
	require.Empty(t, result.NextPageURL)
}

func TestExtractNextPageEdgeCases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing next link",
			body: `<html><body><div class="card"><span>x</span></div></body></html>`,
			want: "",
		},
		{
			name: "fragment only link",
			body: `<html><body><nav><a class="next" href="#top">Next</a></nav></body></html>`,
			want: "",
		},
		{
			name: "empty href",
			body: `<html><body><nav><a class="next" href="">Next</a></nav></body></html>`,
			want: "",
		},
		{
			name: "absolute href",
			body: `<html><body><nav><a class="next" href="https://other.example.com/p/2">Next</a></nav></body></html>`,
			want: "https://other.example.com/p/2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rules := scrape.RuleSet{
				ListSelector:     "div.card",
				Fields:           []scrape.FieldRule{{Name: "any", Selector: "span"}},
				NextPageSelector: "nav a.next",
			}
			result, err := New().Extract(rules, "https://example.com/projects", []byte(tc.body))
			require.NoError(t, err)
			require.Equal(t, tc.want, result.NextPageURL)
		})
	}
}

func TestExtractResolvesDetailLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
	  <div class="card"><h3>Sunrise Towers</h3><a class="detail" href="/d/101">View</a></div>
	  <div class="card"><h3>Lake View</h3><a class="detail" href="https://other.example.com/d/102">View</a></div>
	  <div class="card"><h3>No Link</h3></div>
	  <div class="card"><h3>Fragment</h3><a class="detail" href="#top">View</a></div>
	</body></html>`)
	rules := scrape.RuleSet{
		ListSelector:   "div.card",
		Fields:         []scrape.FieldRule{{Name: "project_name", Selector: "h3"}},
		DetailSelector: "a.detail",
	}

	result, err := New().Extract(rules, "https://example.com/projects", body)
	require.NoError(t, err)
	require.Len(t, result.Fields, 4)
	require.Equal(t, []string{
		"https://example.com/d/101",
		"https://other.example.com/d/102",
		"",
		"",
	}, result.DetailURLs)
}

func TestExtractWithoutDetailSelectorLeavesDetailURLsEmpty(t *testing.T) {
	t.Parallel()

	result, err := New().Extract(listingRules(), "https://example.com/projects", []byte(listingPage))
	require.NoError(t, err)
	require.Empty(t, result.DetailURLs)
}

func TestExtractDropsEmptyRows(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
	  <div class="card"><h3>Named</h3></div>
	  <div class="card"><p>no title here</p></div>
	</body></html>`)
	rules := scrape.RuleSet{
		ListSelector: "div.card",
		Fields:       []scrape.FieldRule{{Name: "project_name", Selector: "h3"}},
	}

	result, err := New().Extract(rules, "https://example.com", body)
	require.NoError(t, err)
	require.Len(t, result.Fields, 1)
	require.Equal(t, "Named", result.Fields[0]["project_name"])
}

func TestExtractBadPageURL(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><nav><a class="next" href="/p/2">Next</a></nav></body></html>`)
	rules := scrape.RuleSet{NextPageSelector: "nav a.next"}

	_, err := New().Extract(rules, "://bad", body)
	require.Error(t, err)
}

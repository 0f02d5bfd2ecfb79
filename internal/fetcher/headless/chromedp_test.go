package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/scrapekit/scrapper/internal/scrape"
)

func TestNewChromedpSlotValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.slots))
	require.Equal(t, defaultNavTimeout, fetcher.cfg.NavigationTimeout)
}

func TestAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{slots: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, fetcher.acquire(ctx))

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestDocMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newDocMeta()
	meta.onEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  204,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	status, headers, url := meta.resolve("https://req", "")
	require.Equal(t, 204, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://example.com/rendered", url)

	// Sub-resource responses must not overwrite document metadata.
	meta.onEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	status, _, _ = meta.resolve("https://req", "")
	require.Equal(t, 204, status)

	meta = newDocMeta()
	status, _, url = meta.resolve("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Multi": {"a", "b"}, "X-Single": {"one"}, "X-Empty": {}}
	headers := toNetworkHeaders(src)
	require.Equal(t, "one", headers["X-Single"])
	require.Equal(t, []string{"a", "b"}, headers["X-Multi"])
	require.NotContains(t, headers, "X-Empty")
}

func TestDisabledFetcherError(t *testing.T) {
	t.Parallel()

	_, err := NewDisabled().Fetch(context.Background(), scrape.FetchRequest{})
	require.Error(t, err)
}

func TestSettleDelayDefault(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 500*time.Millisecond, fetcher.cfg.SettleDelay)
}

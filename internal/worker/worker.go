// Package worker executes scrape runs dequeued from the run queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrapekit/scrapper/internal/metrics"
	"github.com/scrapekit/scrapper/internal/scrape"
)

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
	Topic       string
	MaxPages    int
}

// Worker consumes queue items and executes the fetch-extract-store cycle
// for each run.
type Worker struct {
	queue           scrape.Queue
	results         scrape.ResultStore
	blobStore       scrape.BlobStore
	publisher       scrape.Publisher
	hasher          scrape.Hasher
	clock           scrape.Clock
	ids             scrape.IDGenerator
	probeFetcher    scrape.Fetcher
	headlessFetcher scrape.Fetcher
	detector        scrape.HeadlessDetector
	extractor       scrape.Extractor
	robots          scrape.RobotsPolicy
	limiter         scrape.HostLimiter
	retry           *RetryPolicy
	cfg             Config
	logger          *zap.Logger
}

// Deps bundles the collaborators a Worker needs.
type Deps struct {
	Queue           scrape.Queue
	Results         scrape.ResultStore
	BlobStore       scrape.BlobStore
	Publisher       scrape.Publisher
	Hasher          scrape.Hasher
	Clock           scrape.Clock
	IDs             scrape.IDGenerator
	ProbeFetcher    scrape.Fetcher
	HeadlessFetcher scrape.Fetcher
	Detector        scrape.HeadlessDetector
	Extractor       scrape.Extractor
	Robots          scrape.RobotsPolicy
	Limiter         scrape.HostLimiter
	Retry           *RetryPolicy
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	retry := deps.Retry
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	return &Worker{
		queue:           deps.Queue,
		results:         deps.Results,
		blobStore:       deps.BlobStore,
		publisher:       deps.Publisher,
		hasher:          deps.Hasher,
		clock:           deps.Clock,
		ids:             deps.IDs,
		probeFetcher:    deps.ProbeFetcher,
		headlessFetcher: deps.HeadlessFetcher,
		detector:        deps.Detector,
		extractor:       deps.Extractor,
		robots:          deps.Robots,
		limiter:         deps.Limiter,
		retry:           retry,
		cfg:             cfg,
		logger:          logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run",
			zap.String("run_id", item.RunID),
			zap.String("project", item.Project.Slug),
		)
		metrics.IncActiveWorkers()
		w.processRun(ctx, item)
		metrics.DecActiveWorkers()
	}
}

// runState accumulates what a run produced: the counters persisted with
// the run row, plus the archive URIs announced in the completion event.
type runState struct {
	counters scrape.RunCounters
	blobURIs []string
}

func (w *Worker) processRun(ctx context.Context, item scrape.QueueItem) {
	if w.canceledWhileQueued(ctx, item.RunID) {
		w.logger.Info("run canceled before start", zap.String("run_id", item.RunID))
		return
	}

	state := &runState{}
	if err := w.results.UpdateRunStatus(ctx, item.RunID, scrape.RunStatusRunning, "", state.counters); err != nil {
		w.logger.Error("run status update failed", zap.String("run_id", item.RunID), zap.Error(err))
		return
	}

	errText := w.crawlPages(ctx, item, state)

	status, errText := w.deriveFinalStatus(ctx, item.RunID, state.counters, errText)
	metrics.ObserveRun(string(status))

	// The final status must land even when the worker context is gone.
	finalCtx := context.WithoutCancel(ctx)
	if err := w.results.UpdateRunStatus(finalCtx, item.RunID, status, errText, state.counters); err != nil {
		w.logger.Error("final run status update failed", zap.String("run_id", item.RunID), zap.Error(err))
		return
	}
	w.publishRunEvent(finalCtx, item, status, state)
}

// crawlPages walks the project's listing pages until there is no next
// page, the page cap is hit, or a page fails. It returns the last error
// text, if any.
func (w *Worker) crawlPages(ctx context.Context, item scrape.QueueItem, state *runState) string {
	maxPages := item.Project.MaxPages
	if maxPages <= 0 {
		maxPages = w.cfg.MaxPages
	}

	pageURL := item.Project.TargetURL
	visited := make(map[string]struct{}, maxPages)

	for page := 1; pageURL != "" && page <= maxPages; page++ {
		if ctx.Err() != nil {
			return "run interrupted"
		}
		if w.runCanceled(ctx, item.RunID) {
			return "canceled by request"
		}
		if _, seen := visited[pageURL]; seen {
			w.logger.Warn("pagination loop detected",
				zap.String("run_id", item.RunID), zap.String("url", pageURL))
			return ""
		}
		visited[pageURL] = struct{}{}

		next, err := w.handlePage(ctx, item, pageURL, page, state)
		if err != nil {
			state.counters.PagesFailed++
			w.logger.Error("page failed",
				zap.String("run_id", item.RunID),
				zap.String("url", pageURL),
				zap.Int("page", page),
				zap.Error(err),
			)
			return err.Error()
		}
		pageURL = next
	}
	return ""
}

func (w *Worker) handlePage(
	ctx context.Context,
	item scrape.QueueItem,
	pageURL string,
	page int,
	state *runState,
) (string, error) {
	if item.Project.RespectRobots && w.robots != nil {
		allowed, err := w.robots.Allowed(ctx, pageURL)
		if err != nil {
			return "", fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return "", fmt.Errorf("blocked by robots.txt: %s", pageURL)
		}
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, pageURL); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := w.fetchWithRetry(ctx, item, pageURL, &state.counters)
	if err != nil {
		return "", err
	}

	if promoted, ok := w.maybePromote(ctx, item, pageURL, resp); ok {
		resp = promoted
		state.counters.UsedHeadless = true
		metrics.ObserveHeadlessPromotion()
	}
	metrics.ObserveFetch(resp.URL, resp.StatusCode, len(resp.Body))

	uri, err := w.archivePage(ctx, item, page, resp)
	if err != nil {
		return "", err
	}
	state.blobURIs = append(state.blobURIs, uri)
	state.counters.PagesFetched++

	result, err := w.extractor.Extract(item.Project.Rules, resp.URL, resp.Body)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	if err := w.storeRecords(ctx, item, resp.URL, result, state); err != nil {
		return "", err
	}
	return result.NextPageURL, nil
}

func (w *Worker) fetchWithRetry(
	ctx context.Context,
	item scrape.QueueItem,
	pageURL string,
	counters *scrape.RunCounters,
) (scrape.FetchResponse, error) {
	request := scrape.FetchRequest{RunID: item.RunID, URL: pageURL}
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := w.probeFetcher.Fetch(ctx, request)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !w.retry.ShouldRetry(err, attempt+1) {
			break
		}
		counters.Retries++
		w.logger.Warn("fetch retry",
			zap.String("run_id", item.RunID),
			zap.String("url", pageURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return scrape.FetchResponse{}, fmt.Errorf("retry wait canceled: %w", ctx.Err())
		case <-time.After(w.retry.Backoff(attempt)):
		}
	}
	return scrape.FetchResponse{}, fmt.Errorf("probe fetch: %w", lastErr)
}

func (w *Worker) maybePromote(
	ctx context.Context,
	item scrape.QueueItem,
	pageURL string,
	resp scrape.FetchResponse,
) (scrape.FetchResponse, bool) {
	if !item.Project.HeadlessAllowed || w.detector == nil || w.headlessFetcher == nil {
		return resp, false
	}
	if !w.detector.ShouldPromote(resp, item.Project.Rules) {
		return resp, false
	}

	headlessResp, err := w.headlessFetcher.Fetch(ctx, scrape.FetchRequest{
		RunID:       item.RunID,
		URL:         pageURL,
		UseHeadless: true,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("run_id", item.RunID), zap.String("url", pageURL), zap.Error(err))
		return resp, false
	}
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

// archivePage stores the raw body and records the fetch, returning the
// blob URI.
func (w *Worker) archivePage(ctx context.Context, item scrape.QueueItem, page int, resp scrape.FetchResponse) (string, error) {
	hash, err := w.hasher.Hash(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}

	uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(item.RunID, page, hash), w.cfg.ContentType, resp.Body)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	fetch := scrape.FetchResult{
		RunID:        item.RunID,
		ProjectID:    item.Project.ID,
		URL:          resp.URL,
		StatusCode:   resp.StatusCode,
		UsedHeadless: resp.UsedHeadless,
		FetchedAt:    w.clock.Now(),
		DurationMs:   resp.Duration.Milliseconds(),
		ContentHash:  hash,
		BlobURI:      uri,
		Headers:      resp.Headers,
	}
	if err := w.results.RecordFetch(ctx, fetch); err != nil {
		return "", fmt.Errorf("record fetch: %w", err)
	}
	return uri, nil
}

func (w *Worker) storeRecords(
	ctx context.Context,
	item scrape.QueueItem,
	fetchURL string,
	result scrape.PageResult,
	state *runState,
) error {
	for i, fields := range result.Fields {
		state.counters.RecordsExtracted++

		if i < len(result.DetailURLs) && result.DetailURLs[i] != "" {
			w.enrichFromDetail(ctx, item, result.DetailURLs[i], fields)
		}

		dedupKey, err := w.hasher.KeyHash(item.Project.ID, fields, item.Project.Rules.KeyFields)
		if err != nil {
			return fmt.Errorf("dedup key: %w", err)
		}
		id, err := w.ids.NewID()
		if err != nil {
			return fmt.Errorf("record id: %w", err)
		}

		inserted, err := w.results.InsertRecord(ctx, scrape.Record{
			ID:          id,
			ProjectID:   item.Project.ID,
			RunID:       item.RunID,
			FetchURL:    fetchURL,
			DedupKey:    dedupKey,
			Fields:      fields,
			ExtractedAt: w.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		if inserted {
			state.counters.RecordsNew++
			metrics.ObserveRecord(item.Project.Slug, "new")
		} else {
			state.counters.RecordsDuplicate++
			metrics.ObserveRecord(item.Project.Slug, "duplicate")
		}
	}
	return nil
}

// enrichFromDetail fetches the record's detail page and fills DetailFields
// into the record. List-page values win on conflict. A failed detail fetch
// leaves the record as extracted from the list page, so detail failures
// never fail the run and detail pages never count toward page limits.
func (w *Worker) enrichFromDetail(ctx context.Context, item scrape.QueueItem, detailURL string, fields map[string]string) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, detailURL); err != nil {
			w.logger.Warn("detail fetch skipped",
				zap.String("run_id", item.RunID), zap.String("url", detailURL), zap.Error(err))
			return
		}
	}
	resp, err := w.probeFetcher.Fetch(ctx, scrape.FetchRequest{RunID: item.RunID, URL: detailURL})
	if err != nil {
		w.logger.Warn("detail fetch failed",
			zap.String("run_id", item.RunID), zap.String("url", detailURL), zap.Error(err))
		return
	}
	detail, err := w.extractor.Extract(scrape.RuleSet{Fields: item.Project.Rules.DetailFields}, resp.URL, resp.Body)
	if err != nil {
		w.logger.Warn("detail extract failed",
			zap.String("run_id", item.RunID), zap.String("url", detailURL), zap.Error(err))
		return
	}
	if len(detail.Fields) == 0 {
		return
	}
	for name, value := range detail.Fields[0] {
		if fields[name] == "" {
			fields[name] = value
		}
	}
}

func (w *Worker) publishRunEvent(ctx context.Context, item scrape.QueueItem, status scrape.RunStatus, state *runState) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	blobURIs := state.blobURIs
	if blobURIs == nil {
		blobURIs = []string{}
	}
	payload := map[string]any{
		"run_id":            item.RunID,
		"project_id":        item.Project.ID,
		"project_slug":      item.Project.Slug,
		"status":            string(status),
		"trigger":           string(item.Trigger),
		"pages_fetched":     state.counters.PagesFetched,
		"records_extracted": state.counters.RecordsExtracted,
		"records_new":       state.counters.RecordsNew,
		"blob_uris":         blobURIs,
		"finished_at":       w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Error("publish run event failed",
			zap.String("run_id", item.RunID), zap.Error(err))
		return
	}
	w.logger.Info("run event published",
		zap.String("run_id", item.RunID),
		zap.String("status", string(status)),
	)
}

func (w *Worker) buildBlobPath(runID string, page int, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/page-%03d-%s.html", runID, page, hash)
	}
	return fmt.Sprintf("%s/%s/page-%03d-%s.html", prefix, runID, page, hash)
}

func (w *Worker) canceledWhileQueued(ctx context.Context, runID string) bool {
	run, err := w.results.GetRun(ctx, runID)
	if err != nil {
		if !errors.Is(err, scrape.ErrNotFound) {
			w.logger.Error("run lookup failed", zap.String("run_id", runID), zap.Error(err))
		}
		return false
	}
	return run.Status == scrape.RunStatusCanceled
}

func (w *Worker) runCanceled(ctx context.Context, runID string) bool {
	run, err := w.results.GetRun(ctx, runID)
	if err != nil {
		return false
	}
	return run.Status == scrape.RunStatusCanceled
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	runID string,
	counters scrape.RunCounters,
	errText string,
) (scrape.RunStatus, string) {
	if counters.PagesFetched == 0 && errText == "" {
		errText = "no pages were fetched"
	}

	switch {
	case ctx.Err() != nil, w.runCanceled(ctx, runID):
		return scrape.RunStatusCanceled, errText
	case counters.PagesFetched == 0:
		return scrape.RunStatusFailed, errText
	case counters.PagesFailed > 0:
		return scrape.RunStatusPartial, errText
	default:
		return scrape.RunStatusSucceeded, errText
	}
}

// Package downloader walks the extracted post sequence, resolves each
// post's media through the selection policy and persists the bytes.
// Processing is strictly sequential: the platform penalizes parallel
// traffic and the ordinal naming scheme depends on ordering.
package downloader

import (
	stderrors "errors"
	"io"
	"net/http"

	"igdownloader/pkg/config"
	"igdownloader/pkg/errors"
	"igdownloader/pkg/extractor"
	"igdownloader/pkg/instagram"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/media"
	"igdownloader/pkg/ratelimit"
	"igdownloader/pkg/retry"
	"igdownloader/pkg/storage"
)

// errSizeLimit marks a video whose advertised size exceeds the cap at
// download time. A policy skip, not a failure.
var errSizeLimit = stderrors.New("video exceeds configured size limit")

// bodyReader classifies mid-stream read failures as network errors so a
// connection dropped during the copy is retried like a failed request.
type bodyReader struct {
	r io.Reader
}

func (b bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, errors.New(errors.ErrorTypeNetwork, 0, "media stream interrupted: %v", err)
	}
	return n, err
}

// MediaFetcher performs a streaming GET of a media URL.
type MediaFetcher interface {
	Download(url string) (*http.Response, error)
}

// PostSource yields posts in extraction order. extractor.Feed implements it.
type PostSource interface {
	Next() (media.Post, error)
}

// Progress consumes a stream of completed/total counts.
type Progress interface {
	Update(completed, total int)
}

// Summary is the externally observable result of a run alongside the
// files written.
type Summary struct {
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
}

// itemStatus is the outcome of a single item.
type itemStatus int

const (
	itemSucceeded itemStatus = iota
	itemSkipped
	itemFailed
)

// Orchestrator consumes the post sequence and drives downloads.
type Orchestrator struct {
	client   MediaFetcher
	store    *storage.Manager
	selector *media.Selector
	pacer    ratelimit.Pacer
	retryCfg config.RetryConfig
	maxVideo int64
	logger   logger.Logger
	progress Progress
}

// New creates an orchestrator writing into the given storage manager.
func New(client MediaFetcher, store *storage.Manager, selector *media.Selector, cfg *config.Config, pacer ratelimit.Pacer, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}
	if pacer == nil {
		pacer = ratelimit.Nop{}
	}
	return &Orchestrator{
		client:   client,
		store:    store,
		selector: selector,
		pacer:    pacer,
		retryCfg: cfg.Retry,
		maxVideo: cfg.Download.MaxVideoSizeBytes(),
		logger:   log,
	}
}

// SetProgress attaches a progress consumer. Optional.
func (o *Orchestrator) SetProgress(p Progress) {
	o.progress = p
}

// Run processes posts one at a time until the feed is exhausted. A single
// item's failure never aborts the run; only a fatal feed error (session
// rejection, retry-exhausted throttling) does, and the partial summary is
// returned alongside it.
func (o *Orchestrator) Run(feed PostSource) (Summary, error) {
	var sum Summary
	total := 0

	for {
		post, err := feed.Next()
		if stderrors.Is(err, extractor.ErrEndOfFeed) {
			break
		}
		if err != nil {
			o.logger.ErrorWithFields("aborting run on fatal extraction error", map[string]interface{}{
				"error": err.Error(),
			})
			return sum, err
		}

		resolved, skips := o.selector.Select(post)
		total += len(resolved) + len(skips)
		sum.Skipped += len(skips)
		for _, skip := range skips {
			o.logger.InfoWithFields("item skipped by policy", map[string]interface{}{
				"post_id": post.ID,
				"ordinal": post.Ordinal,
				"index":   skip.Item.Index,
				"reason":  skip.Reason,
			})
		}

		for _, item := range resolved {
			switch o.downloadItem(post, item) {
			case itemSucceeded:
				sum.Attempted++
				sum.Succeeded++
			case itemFailed:
				sum.Attempted++
				sum.Failed++
			case itemSkipped:
				sum.Skipped++
			}
			o.report(sum, total)
		}
	}

	o.logger.InfoWithFields("run complete", map[string]interface{}{
		"attempted": sum.Attempted,
		"succeeded": sum.Succeeded,
		"skipped":   sum.Skipped,
		"failed":    sum.Failed,
	})

	return sum, nil
}

// downloadItem performs one paced, retried, atomic download.
func (o *Orchestrator) downloadItem(post media.Post, item media.Resolved) itemStatus {
	ext := storage.Extension(item.URL, "", item.Item.Kind)
	target := o.store.PathFor(post, item.Item, ext)

	// A prior run may have stored the item under a Content-Type-refined
	// extension; matching on any extension avoids re-fetching it.
	if existing := o.store.ExistingPath(post, item.Item); existing != "" {
		o.logger.DebugWithFields("already downloaded, skipping", map[string]interface{}{
			"post_id": post.ID,
			"path":    existing,
		})
		return itemSkipped
	}

	o.pacer.Wait()

	err := retry.Do(func() error {
		resp, err := o.client.Download(item.URL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// The URL may carry no usable extension; refine from Content-Type.
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			if refined := storage.Extension(item.URL, ct, item.Item.Kind); refined != ext {
				ext = refined
				target = o.store.PathFor(post, item.Item, ext)
			}
		}

		// Renditions don't always carry a size estimate; the advertised
		// length is the authoritative check before any bytes are written.
		if item.Item.Kind == media.KindVideo && o.maxVideo > 0 && instagram.ContentLength(resp) > o.maxVideo {
			return errSizeLimit
		}

		if _, err := o.store.Save(bodyReader{resp.Body}, target); err != nil {
			return err
		}
		return nil
	}, &retry.Config{
		MaxAttempts: o.retryCfg.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    o.retryCfg.BaseDelay,
			MaxDelay:     o.retryCfg.MaxDelay,
			Multiplier:   o.retryCfg.Multiplier,
			JitterFactor: o.retryCfg.JitterFactor,
		},
		RetryIf: func(err error) bool {
			return errors.IsRetryable(errors.TypeOf(err))
		},
		Logger: o.logger,
	})

	if err == nil {
		o.logger.DebugWithFields("item downloaded", map[string]interface{}{
			"post_id": post.ID,
			"ordinal": post.Ordinal,
			"path":    target,
		})
		return itemSucceeded
	}

	if stderrors.Is(err, errSizeLimit) {
		o.logger.InfoWithFields("skipping video over size limit", map[string]interface{}{
			"post_id":  post.ID,
			"ordinal":  post.Ordinal,
			"limit_mb": o.maxVideo / 1024 / 1024,
		})
		return itemSkipped
	}

	o.logger.ErrorWithFields("item failed", map[string]interface{}{
		"post_id": post.ID,
		"ordinal": post.Ordinal,
		"url":     item.URL,
		"error":   err.Error(),
	})
	return itemFailed
}

func (o *Orchestrator) report(sum Summary, total int) {
	if o.progress == nil {
		return
	}
	o.progress.Update(sum.Succeeded+sum.Failed+sum.Skipped, total)
}

// Package extractor turns an authenticated session and a target username
// into a lazy, ordered sequence of normalized posts.
package extractor

import (
	stderrors "errors"

	"igdownloader/pkg/config"
	"igdownloader/pkg/errors"
	"igdownloader/pkg/instagram"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/media"
	"igdownloader/pkg/ratelimit"
	"igdownloader/pkg/retry"
)

// ErrEndOfFeed terminates iteration over a feed.
var ErrEndOfFeed = stderrors.New("end of feed")

// TimelineClient fetches one page of a user's feed.
type TimelineClient interface {
	FetchTimelinePage(username, after string, count int) (*instagram.TimelineResponse, error)
}

// Extractor queries the feed endpoint with pagination and normalizes raw
// pages into posts. It holds no per-run state; each Feed call starts a
// fresh run from the first page.
type Extractor struct {
	client   TimelineClient
	pacer    ratelimit.Pacer
	logger   logger.Logger
	pageSize int
	maxPosts int
	retryCfg config.RetryConfig
}

// New creates an extractor over the given session client.
func New(client TimelineClient, cfg *config.Config, pacer ratelimit.Pacer, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	if pacer == nil {
		pacer = ratelimit.Nop{}
	}
	return &Extractor{
		client:   client,
		pacer:    pacer,
		logger:   log,
		pageSize: cfg.Download.PageSize,
		maxPosts: cfg.Download.MaxPosts,
		retryCfg: cfg.Retry,
	}
}

// Feed returns a fresh iterator over the user's timeline. Iteration always
// re-queries from the first page; there is no persisted cursor.
func (e *Extractor) Feed(username string) *Feed {
	return &Feed{
		ex:       e,
		username: username,
		hasNext:  true,
		seenURLs: make(map[string]bool),
	}
}

// Feed is a lazy cursor over a user's timeline. Not safe for concurrent
// use; the pipeline is strictly sequential.
type Feed struct {
	ex       *Extractor
	username string

	buffer   []media.Post
	cursor   string
	hasNext  bool
	started  bool
	done     bool
	fatalErr error

	ordinal  int
	page     int
	seenURLs map[string]bool
}

// Next yields the next post in platform order. Returns ErrEndOfFeed when
// the sequence is exhausted, or a fatal error (authentication rejection,
// retry-exhausted throttling) that must abort the run.
func (f *Feed) Next() (media.Post, error) {
	if f.fatalErr != nil {
		return media.Post{}, f.fatalErr
	}

	for len(f.buffer) == 0 {
		if f.done {
			return media.Post{}, ErrEndOfFeed
		}
		if err := f.fetchPage(); err != nil {
			f.fatalErr = err
			return media.Post{}, err
		}
	}

	post := f.buffer[0]
	f.buffer = f.buffer[1:]
	return post, nil
}

// fetchPage requests the next page and fills the buffer with its posts.
// Fail-soft conditions (malformed page, exhausted transient retries on a
// non-throttling error) mark the feed done without returning an error so
// already-buffered posts survive.
func (f *Feed) fetchPage() error {
	if f.ex.maxPosts > 0 && f.ordinal >= f.ex.maxPosts {
		f.done = true
		return nil
	}
	if f.started && !f.hasNext {
		f.done = true
		return nil
	}

	// Space page requests out; the first page goes immediately.
	if f.started {
		f.ex.pacer.Wait()
	}
	f.started = true
	f.page++

	f.ex.logger.DebugWithFields("fetching feed page", map[string]interface{}{
		"username": f.username,
		"page":     f.page,
		"cursor":   f.cursor,
	})

	page, err := retry.DoWithResult(func() (*instagram.TimelineResponse, error) {
		return f.ex.client.FetchTimelinePage(f.username, f.cursor, f.ex.pageSize)
	}, &retry.Config{
		MaxAttempts: f.ex.retryCfg.RateLimitAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    f.ex.retryCfg.RateLimitBaseDelay,
			MaxDelay:     f.ex.retryCfg.MaxDelay,
			Multiplier:   f.ex.retryCfg.Multiplier,
			JitterFactor: f.ex.retryCfg.JitterFactor,
		},
		RetryIf: func(err error) bool {
			return errors.IsRetryable(errors.TypeOf(err))
		},
		Logger: f.ex.logger,
	})

	if err != nil {
		switch errors.TypeOf(err) {
		case errors.ErrorTypeAuth:
			// Fatal: every later page would be rejected the same way.
			return err
		case errors.ErrorTypeRateLimit:
			// The bounded backoff budget is spent; surface as fatal.
			return err
		case errors.ErrorTypeParsing:
			f.ex.logger.WarnWithFields("malformed feed page, ending pagination", map[string]interface{}{
				"username": f.username,
				"page":     f.page,
				"error":    err.Error(),
			})
			f.done = true
			return nil
		default:
			f.ex.logger.WarnWithFields("feed page fetch failed, ending pagination", map[string]interface{}{
				"username": f.username,
				"page":     f.page,
				"error":    err.Error(),
			})
			f.done = true
			return nil
		}
	}

	conn := page.Data.Connection
	if len(conn.Edges) == 0 {
		f.ex.logger.InfoWithFields("no posts on page", map[string]interface{}{
			"username": f.username,
			"page":     f.page,
		})
		f.done = true
		return nil
	}

	for _, edge := range conn.Edges {
		if f.ex.maxPosts > 0 && f.ordinal >= f.ex.maxPosts {
			f.done = true
			break
		}
		post, ok := f.normalize(edge.Node)
		if !ok {
			continue
		}
		f.buffer = append(f.buffer, post)
	}

	f.ex.logger.InfoWithFields("feed page fetched", map[string]interface{}{
		"username": f.username,
		"page":     f.page,
		"posts":    len(conn.Edges),
		"has_next": conn.PageInfo.HasNextPage,
	})

	f.hasNext = conn.PageInfo.HasNextPage && conn.PageInfo.EndCursor != ""
	f.cursor = conn.PageInfo.EndCursor
	if !f.hasNext {
		f.done = true
	}
	return nil
}

// normalize converts one raw feed node into a Post, assigning the run
// ordinal. Nodes without any usable media are dropped without consuming
// an ordinal, keeping the sequence dense.
func (f *Feed) normalize(node instagram.MediaNode) (media.Post, bool) {
	var items []media.MediaItem
	postType := media.TypeSingle

	switch node.MediaType {
	case instagram.MediaTypeCarousel:
		postType = media.TypeCarousel
		for _, child := range node.CarouselMedia {
			if item, ok := f.normalizeItem(child, len(items)+1); ok {
				items = append(items, item)
			}
		}
	default:
		if item, ok := f.normalizeItem(node, 1); ok {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		f.ex.logger.DebugWithFields("dropping post without usable media", map[string]interface{}{
			"post_id":    node.PK,
			"media_type": node.MediaType,
		})
		return media.Post{}, false
	}

	f.ordinal++
	return media.Post{
		ID:      node.PK,
		Ordinal: f.ordinal,
		Type:    postType,
		Items:   items,
	}, true
}

// normalizeItem converts one media node into a MediaItem with the given
// intra-post index. Items whose URLs were already seen this run are
// dropped as duplicates.
func (f *Feed) normalizeItem(node instagram.MediaNode, index int) (media.MediaItem, bool) {
	switch node.MediaType {
	case instagram.MediaTypeVideo:
		var renditions []media.VideoRendition
		for _, v := range node.VideoVersions {
			if v.URL == "" || f.seenURLs[v.URL] {
				continue
			}
			renditions = append(renditions, media.VideoRendition{
				URL:    v.URL,
				Width:  v.Width,
				Height: v.Height,
				Bytes:  v.Bytes,
			})
		}
		if len(renditions) == 0 {
			return media.MediaItem{}, false
		}
		for _, r := range renditions {
			f.seenURLs[r.URL] = true
		}
		return media.MediaItem{Kind: media.KindVideo, Renditions: renditions, Index: index}, true

	case instagram.MediaTypeImage:
		if len(node.ImageVersions.Candidates) == 0 {
			return media.MediaItem{}, false
		}
		url := node.ImageVersions.Candidates[0].URL
		if url == "" || f.seenURLs[url] {
			return media.MediaItem{}, false
		}
		f.seenURLs[url] = true
		return media.MediaItem{Kind: media.KindImage, ImageURL: url, Index: index}, true

	default:
		return media.MediaItem{}, false
	}
}

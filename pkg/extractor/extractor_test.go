package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdownloader/pkg/config"
	"igdownloader/pkg/errors"
	"igdownloader/pkg/instagram"
	"igdownloader/pkg/media"
	"igdownloader/pkg/ratelimit"
)

// scriptedClient replays a fixed sequence of page results, one per call.
type scriptedClient struct {
	pages []pageResult
	calls int
}

type pageResult struct {
	page *instagram.TimelineResponse
	err  error
}

func (s *scriptedClient) FetchTimelinePage(username, after string, count int) (*instagram.TimelineResponse, error) {
	if s.calls >= len(s.pages) {
		return nil, errors.New(errors.ErrorTypePermanent, 0, "unexpected call %d", s.calls+1)
	}
	result := s.pages[s.calls]
	s.calls++
	return result.page, result.err
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.RateLimitAttempts = 2
	cfg.Retry.RateLimitBaseDelay = time.Millisecond
	return cfg
}

func page(hasNext bool, cursor string, nodes ...instagram.MediaNode) *instagram.TimelineResponse {
	resp := &instagram.TimelineResponse{Status: "ok"}
	for _, n := range nodes {
		resp.Data.Connection.Edges = append(resp.Data.Connection.Edges, instagram.TimelineEdge{Node: n})
	}
	resp.Data.Connection.PageInfo = instagram.PageInfo{HasNextPage: hasNext, EndCursor: cursor}
	return resp
}

func imageNode(pk, url string) instagram.MediaNode {
	return instagram.MediaNode{
		PK:        pk,
		MediaType: instagram.MediaTypeImage,
		ImageVersions: instagram.ImageVersions{
			Candidates: []instagram.ImageCandidate{{URL: url, Width: 1080, Height: 1080}},
		},
	}
}

func videoNode(pk string, urls ...string) instagram.MediaNode {
	node := instagram.MediaNode{PK: pk, MediaType: instagram.MediaTypeVideo}
	for i, u := range urls {
		node.VideoVersions = append(node.VideoVersions, instagram.VideoVersion{
			URL:    u,
			Height: 1080 - i*360,
			Width:  1920 - i*640,
		})
	}
	return node
}

func carouselNode(pk string, children ...instagram.MediaNode) instagram.MediaNode {
	return instagram.MediaNode{PK: pk, MediaType: instagram.MediaTypeCarousel, CarouselMedia: children}
}

func drain(t *testing.T, feed *Feed) []media.Post {
	t.Helper()
	var posts []media.Post
	for {
		post, err := feed.Next()
		if err == ErrEndOfFeed {
			return posts
		}
		require.NoError(t, err)
		posts = append(posts, post)
	}
}

func TestFeedPagination(t *testing.T) {
	client := &scriptedClient{pages: []pageResult{
		{page: page(true, "c1",
			imageNode("1", "https://cdn.example.com/1.jpg"),
			imageNode("2", "https://cdn.example.com/2.jpg"))},
		{page: page(false, "",
			imageNode("3", "https://cdn.example.com/3.jpg"))},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	require.Len(t, posts, 3)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, []int{1, 2, 3}, []int{posts[0].Ordinal, posts[1].Ordinal, posts[2].Ordinal})
	assert.Equal(t, "1", posts[0].ID)
	assert.Equal(t, "3", posts[2].ID)
}

func TestFeedOrdinalsStayDenseAcrossDroppedPosts(t *testing.T) {
	// The middle node carries no usable media and must not consume an ordinal.
	client := &scriptedClient{pages: []pageResult{
		{page: page(false, "",
			imageNode("1", "https://cdn.example.com/1.jpg"),
			instagram.MediaNode{PK: "2", MediaType: instagram.MediaTypeImage},
			imageNode("3", "https://cdn.example.com/3.jpg"))},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	require.Len(t, posts, 2)
	assert.Equal(t, 1, posts[0].Ordinal)
	assert.Equal(t, 2, posts[1].Ordinal)
	assert.Equal(t, "3", posts[1].ID)
}

func TestFeedNormalizesCarousel(t *testing.T) {
	client := &scriptedClient{pages: []pageResult{
		{page: page(false, "", carouselNode("10",
			imageNode("10a", "https://cdn.example.com/10a.jpg"),
			videoNode("10b", "https://cdn.example.com/10b_hd.mp4", "https://cdn.example.com/10b_sd.mp4"),
			imageNode("10c", "https://cdn.example.com/10c.jpg"),
		))},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	require.Len(t, posts, 1)
	post := posts[0]
	assert.Equal(t, media.TypeCarousel, post.Type)
	assert.True(t, post.IsCarousel())
	require.Len(t, post.Items, 3)

	assert.Equal(t, media.KindImage, post.Items[0].Kind)
	assert.Equal(t, 1, post.Items[0].Index)
	assert.Equal(t, media.KindVideo, post.Items[1].Kind)
	assert.Equal(t, 2, post.Items[1].Index)
	assert.Len(t, post.Items[1].Renditions, 2)
	assert.Equal(t, media.KindImage, post.Items[2].Kind)
	assert.Equal(t, 3, post.Items[2].Index)
}

func TestFeedCarouselIndicesStayDense(t *testing.T) {
	// A child without usable media is dropped; later children close the gap.
	client := &scriptedClient{pages: []pageResult{
		{page: page(false, "", carouselNode("10",
			imageNode("10a", "https://cdn.example.com/10a.jpg"),
			instagram.MediaNode{PK: "10b", MediaType: instagram.MediaTypeImage},
			imageNode("10c", "https://cdn.example.com/10c.jpg"),
		))},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	require.Len(t, posts, 1)
	require.Len(t, posts[0].Items, 2)
	assert.Equal(t, 1, posts[0].Items[0].Index)
	assert.Equal(t, 2, posts[0].Items[1].Index)
}

func TestFeedDeduplicatesRepeatedURLs(t *testing.T) {
	client := &scriptedClient{pages: []pageResult{
		{page: page(true, "c1", imageNode("1", "https://cdn.example.com/same.jpg"))},
		{page: page(false, "", imageNode("2", "https://cdn.example.com/same.jpg"))},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	require.Len(t, posts, 1)
	assert.Equal(t, "1", posts[0].ID)
}

func TestFeedAuthErrorIsFatal(t *testing.T) {
	client := &scriptedClient{pages: []pageResult{
		{page: page(true, "c1", imageNode("1", "https://cdn.example.com/1.jpg"))},
		{err: errors.New(errors.ErrorTypeAuth, 401, "session rejected")},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	feed := ex.Feed("someuser")

	post, err := feed.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", post.ID)

	_, err = feed.Next()
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))

	// The fatal error is sticky.
	_, err = feed.Next()
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
}

func TestFeedRateLimitExhaustionIsFatal(t *testing.T) {
	rateLimited := pageResult{err: errors.New(errors.ErrorTypeRateLimit, 429, "slow down")}
	client := &scriptedClient{pages: []pageResult{rateLimited, rateLimited, rateLimited}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	_, err := ex.Feed("someuser").Next()
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeRateLimit, errors.TypeOf(err))
	// The retry budget was spent before giving up.
	assert.Equal(t, 2, client.calls)
}

func TestFeedRateLimitRecovery(t *testing.T) {
	client := &scriptedClient{pages: []pageResult{
		{err: errors.New(errors.ErrorTypeRateLimit, 429, "slow down")},
		{page: page(false, "", imageNode("1", "https://cdn.example.com/1.jpg"))},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	require.Len(t, posts, 1)
	assert.Equal(t, 2, client.calls)
}

func TestFeedMalformedPageFailsSoft(t *testing.T) {
	client := &scriptedClient{pages: []pageResult{
		{page: page(true, "c1", imageNode("1", "https://cdn.example.com/1.jpg"))},
		{err: errors.New(errors.ErrorTypeParsing, 200, "unexpected payload")},
	}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	// Posts from the good page survive; the malformed page ends pagination.
	require.Len(t, posts, 1)
	assert.Equal(t, "1", posts[0].ID)
}

func TestFeedMaxPostsCap(t *testing.T) {
	cfg := testConfig()
	cfg.Download.MaxPosts = 3

	client := &scriptedClient{pages: []pageResult{
		{page: page(true, "c1",
			imageNode("1", "https://cdn.example.com/1.jpg"),
			imageNode("2", "https://cdn.example.com/2.jpg"))},
		{page: page(true, "c2",
			imageNode("3", "https://cdn.example.com/3.jpg"),
			imageNode("4", "https://cdn.example.com/4.jpg"))},
		{page: page(false, "", imageNode("5", "https://cdn.example.com/5.jpg"))},
	}}

	ex := New(client, cfg, ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))

	require.Len(t, posts, 3)
	assert.Equal(t, "3", posts[2].ID)
	// The cap was hit mid-page; no further pages are requested.
	assert.Equal(t, 2, client.calls)
}

func TestFeedEmptyProfile(t *testing.T) {
	client := &scriptedClient{pages: []pageResult{{page: page(false, "")}}}

	ex := New(client, testConfig(), ratelimit.Nop{}, nil)
	posts := drain(t, ex.Feed("someuser"))
	assert.Empty(t, posts)
}

func TestFeedRestartsFromScratch(t *testing.T) {
	makeClient := func() *scriptedClient {
		return &scriptedClient{pages: []pageResult{
			{page: page(false, "", imageNode("1", "https://cdn.example.com/1.jpg"))},
		}}
	}

	ex := New(makeClient(), testConfig(), ratelimit.Nop{}, nil)
	first := drain(t, ex.Feed("someuser"))
	require.Len(t, first, 1)

	// A second run starts over from the first page: same ordinals, no
	// carried cursor or dedupe state.
	ex2 := New(makeClient(), testConfig(), ratelimit.Nop{}, nil)
	second := drain(t, ex2.Feed("someuser"))
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Ordinal, second[0].Ordinal)
}

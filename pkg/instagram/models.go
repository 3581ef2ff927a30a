package instagram

// TimelineResponse is the top-level response of the timeline GraphQL query.
type TimelineResponse struct {
	Data    TimelineData `json:"data"`
	Status  string       `json:"status"`
	Message string       `json:"message"`
}

// LoginRequired reports whether the platform rejected the session while
// still answering 200. Instagram signals expired cookies this way.
func (r *TimelineResponse) LoginRequired() bool {
	return r.Status == "fail" && r.Message == "login_required"
}

// TimelineData wraps the timeline connection in the response.
type TimelineData struct {
	Connection TimelineConnection `json:"xdt_api__v1__feed__user_timeline_graphql_connection"`
}

// TimelineConnection carries one page of feed entries.
type TimelineConnection struct {
	Edges    []TimelineEdge `json:"edges"`
	PageInfo PageInfo       `json:"page_info"`
}

// PageInfo contains pagination information. EndCursor is opaque.
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

// TimelineEdge wraps a single media node.
type TimelineEdge struct {
	Node MediaNode `json:"node"`
}

// Media type codes used by the platform.
const (
	MediaTypeImage    = 1
	MediaTypeVideo    = 2
	MediaTypeCarousel = 8
)

// MediaNode is one post or one carousel child as it appears on the wire.
type MediaNode struct {
	PK            string          `json:"pk"`
	MediaType     int             `json:"media_type"`
	ImageVersions ImageVersions   `json:"image_versions2"`
	VideoVersions []VideoVersion  `json:"video_versions"`
	CarouselMedia []MediaNode     `json:"carousel_media"`
	HasAudio      bool            `json:"has_audio"`
	ProductType   string          `json:"product_type"`
}

// ImageVersions holds the image candidates, best quality first.
type ImageVersions struct {
	Candidates []ImageCandidate `json:"candidates"`
}

// ImageCandidate is one image URL at a particular resolution.
type ImageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VideoVersion is one encoded video variant.
type VideoVersion struct {
	URL    string `json:"url"`
	Type   int    `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Bytes is reported inconsistently by the platform; 0 when absent.
	Bytes int64 `json:"bytes"`
}

// Package media holds the normalized domain model for extracted posts and
// the selection policy that turns a post into downloadable items.
package media

// Kind identifies the media type of a single item.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// PostType tags whether a post carries one media item or a carousel.
type PostType string

const (
	TypeSingle   PostType = "single"
	TypeCarousel PostType = "carousel"
)

// VideoRendition is one encoded variant of a video. Renditions within an
// item are totally ordered by height, with width as tie-break.
type VideoRendition struct {
	URL    string
	Width  int
	Height int
	// Bytes is a size estimate; 0 when the platform did not report one.
	Bytes int64
}

// MediaItem is a single downloadable unit inside a post.
type MediaItem struct {
	Kind Kind

	// ImageURL is set when Kind is KindImage.
	ImageURL string

	// Renditions holds at least one entry when Kind is KindVideo.
	Renditions []VideoRendition

	// Index is the 1-based intra-post position. It is dense within a post
	// and only meaningful for file naming when the parent is a carousel.
	Index int
}

// Post is one normalized feed entry. Immutable after extraction.
type Post struct {
	// ID is the platform-assigned identifier (pk).
	ID string

	// Ordinal is the 1-based position within one extraction run, dense
	// and increasing in yield order.
	Ordinal int

	Type PostType

	// Items holds the post's media in platform order, length >= 1.
	Items []MediaItem
}

// IsCarousel reports whether the post carries multiple media nodes.
func (p Post) IsCarousel() bool {
	return p.Type == TypeCarousel
}

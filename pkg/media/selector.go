package media

import (
	"sort"

	"igdownloader/pkg/config"
	"igdownloader/pkg/logger"
)

// Skip reasons reported by the selector.
const (
	SkipKindDisabled = "kind_disabled"
	SkipSizePolicy   = "size_policy"
)

// Resolved pairs a media item with the source URL chosen for it.
type Resolved struct {
	Item MediaItem
	URL  string
	// Rendition is the chosen video variant, nil for images.
	Rendition *VideoRendition
}

// Skip records an item omitted by policy. Not an error.
type Skip struct {
	Item   MediaItem
	Reason string
	// Bytes is the estimate that tripped the size policy, when applicable.
	Bytes int64
}

// Selector applies the download policy to a post's media items.
type Selector struct {
	cfg    config.DownloadConfig
	logger logger.Logger
}

// NewSelector creates a selector for the given download policy.
func NewSelector(cfg config.DownloadConfig, log logger.Logger) *Selector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Selector{cfg: cfg, logger: log}
}

// Select returns the post's downloadable items in intra-post order, images
// and videos interleaved as they appear in the source post, together with
// the items omitted by policy.
func (s *Selector) Select(post Post) ([]Resolved, []Skip) {
	var resolved []Resolved
	var skipped []Skip

	for _, item := range post.Items {
		switch item.Kind {
		case KindImage:
			if !s.cfg.DownloadImages {
				skipped = append(skipped, Skip{Item: item, Reason: SkipKindDisabled})
				continue
			}
			resolved = append(resolved, Resolved{Item: item, URL: item.ImageURL})

		case KindVideo:
			if !s.cfg.DownloadVideos {
				skipped = append(skipped, Skip{Item: item, Reason: SkipKindDisabled})
				continue
			}
			if len(item.Renditions) == 0 {
				s.logger.WarnWithFields("video item has no renditions", map[string]interface{}{
					"post_id":    post.ID,
					"item_index": item.Index,
				})
				continue
			}

			rendition := ChooseRendition(item.Renditions, s.cfg.VideoQuality)

			if rendition.Bytes > 0 && rendition.Bytes > s.cfg.MaxVideoSizeBytes() {
				s.logger.InfoWithFields("skipping video over size limit", map[string]interface{}{
					"post_id":        post.ID,
					"item_index":     item.Index,
					"estimate_bytes": rendition.Bytes,
					"limit_mb":       s.cfg.MaxVideoSizeMB,
				})
				skipped = append(skipped, Skip{Item: item, Reason: SkipSizePolicy, Bytes: rendition.Bytes})
				continue
			}

			resolved = append(resolved, Resolved{Item: item, URL: rendition.URL, Rendition: &rendition})
		}
	}

	return resolved, skipped
}

// ChooseRendition picks a video variant by quality preference. Renditions
// are sorted by height descending (width descending as tie-break):
// "highest" takes the first, "lowest" the last, and "medium" the element
// at index count/2 of the sorted sequence. Deterministic for any count
// including 1.
func ChooseRendition(renditions []VideoRendition, quality string) VideoRendition {
	sorted := make([]VideoRendition, len(renditions))
	copy(sorted, renditions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Height != sorted[j].Height {
			return sorted[i].Height > sorted[j].Height
		}
		return sorted[i].Width > sorted[j].Width
	})

	switch quality {
	case config.QualityLowest:
		return sorted[len(sorted)-1]
	case config.QualityMedium:
		return sorted[len(sorted)/2]
	default: // config.QualityHighest
		return sorted[0]
	}
}

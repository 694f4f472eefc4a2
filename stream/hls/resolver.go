package hls

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/common"
)

// Quality names accepted besides "<height>p"
const (
	QualityBest  = "best"
	QualityWorst = "worst"
)

// ResolveVariant picks a variant from a master playlist according to the
// requested quality. Quality is "best", "worst" or a resolution height
// such as "720p". Variants are ranked by resolution height first and
// bandwidth second; when no variant declares a resolution the ranking
// falls back to bandwidth alone.
func ResolveVariant(playlist *M3U8Playlist, quality string) (*M3U8Variant, error) {
	if !playlist.IsMaster || len(playlist.Variants) == 0 {
		return nil, common.NewStreamError(common.StreamTypeHLS, playlist.URL,
			common.ErrCodeResolve, "playlist has no variant streams", nil)
	}

	ranked := make([]*M3U8Variant, len(playlist.Variants))
	for i := range playlist.Variants {
		ranked[i] = &playlist.Variants[i]
	}

	// Stable sort keeps playlist order for equal quality, so the first
	// declared variant wins ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		hi, hj := ranked[i].Height(), ranked[j].Height()
		if hi != hj {
			return hi > hj
		}
		return ranked[i].Bandwidth > ranked[j].Bandwidth
	})

	quality = strings.ToLower(strings.TrimSpace(quality))
	switch quality {
	case "", QualityBest:
		return ranked[0], nil
	case QualityWorst:
		return ranked[len(ranked)-1], nil
	}

	height, ok := parseQualityHeight(quality)
	if !ok {
		return nil, common.NewStreamError(common.StreamTypeHLS, playlist.URL,
			common.ErrCodeResolve, fmt.Sprintf("invalid quality %q", quality), nil)
	}

	for _, variant := range ranked {
		if variant.Height() == height {
			return variant, nil
		}
	}

	return nil, common.NewStreamErrorWithFields(common.StreamTypeHLS, playlist.URL,
		common.ErrCodeResolve, fmt.Sprintf("no variant matches quality %q", quality), nil,
		logging.Fields{"available": availableQualities(ranked)})
}

// SelectAudioRendition picks an alternate audio rendition for a variant,
// preferring the configured languages, then the DEFAULT rendition, then
// the first rendition of the group. Returns nil when the variant has no
// audio group or the group is empty.
func SelectAudioRendition(playlist *M3U8Playlist, variant *M3U8Variant, preferred []string) *M3U8Rendition {
	if variant == nil || variant.Audio == "" {
		return nil
	}

	var group []*M3U8Rendition
	for i := range playlist.Renditions {
		r := &playlist.Renditions[i]
		if strings.EqualFold(r.Type, "AUDIO") && r.GroupID == variant.Audio {
			group = append(group, r)
		}
	}
	if len(group) == 0 {
		return nil
	}

	if match := matchRenditionLanguage(group, preferred); match != nil {
		return match
	}

	for _, r := range group {
		if r.Default {
			return r
		}
	}
	return group[0]
}

// matchRenditionLanguage matches rendition LANGUAGE attributes against
// the preferred languages using BCP 47 matching, so "en" matches
// "en-US" and region variants resolve sensibly.
func matchRenditionLanguage(group []*M3U8Rendition, preferred []string) *M3U8Rendition {
	if len(preferred) == 0 {
		return nil
	}

	var supported []language.Tag
	var candidates []*M3U8Rendition
	for _, r := range group {
		if r.Language == "" {
			continue
		}
		tag, err := language.Parse(r.Language)
		if err != nil {
			logging.Debug("ignoring rendition with unparsable language", logging.Fields{
				"component": "hls_resolver",
				"name":      r.Name,
				"language":  r.Language,
			})
			continue
		}
		supported = append(supported, tag)
		candidates = append(candidates, r)
	}
	if len(supported) == 0 {
		return nil
	}

	var wanted []language.Tag
	for _, p := range preferred {
		if tag, err := language.Parse(p); err == nil {
			wanted = append(wanted, tag)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	matcher := language.NewMatcher(supported)
	_, index, confidence := matcher.Match(wanted...)
	if confidence == language.No {
		return nil
	}
	return candidates[index]
}

func parseQualityHeight(quality string) (int, bool) {
	name := strings.TrimSuffix(quality, "p")
	if name == quality {
		return 0, false
	}
	height, err := strconv.Atoi(name)
	if err != nil || height <= 0 {
		return 0, false
	}
	return height, true
}

func availableQualities(ranked []*M3U8Variant) []string {
	qualities := make([]string, 0, len(ranked))
	for _, v := range ranked {
		if h := v.Height(); h > 0 {
			qualities = append(qualities, fmt.Sprintf("%dp", h))
		} else {
			qualities = append(qualities, fmt.Sprintf("%dbps", v.Bandwidth))
		}
	}
	return qualities
}

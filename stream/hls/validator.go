package hls

import (
	"fmt"

	"github.com/streamkit/segmented/stream/common"
)

// ValidatePlaylist performs structural checks beyond what parsing
// enforces: feature/version consistency and segment sanity. Parsing
// already guarantees tag pairing; this catches playlists that parse but
// would misbehave downstream.
func ValidatePlaylist(playlist *M3U8Playlist) error {
	if playlist.IsMaster {
		return validateMaster(playlist)
	}
	return validateMedia(playlist)
}

func validateMaster(playlist *M3U8Playlist) error {
	if len(playlist.Variants) == 0 {
		return validationError(playlist, "master playlist has no variant streams")
	}
	for i := range playlist.Variants {
		variant := &playlist.Variants[i]
		if variant.URI == "" {
			return validationError(playlist, fmt.Sprintf("variant %d has no URI", i))
		}
		if variant.Bandwidth <= 0 {
			return validationError(playlist, fmt.Sprintf("variant %d has no BANDWIDTH", i))
		}
	}
	for i := range playlist.Renditions {
		rendition := &playlist.Renditions[i]
		if rendition.GroupID == "" {
			return validationError(playlist, fmt.Sprintf("rendition %d has no GROUP-ID", i))
		}
	}
	return nil
}

func validateMedia(playlist *M3U8Playlist) error {
	if playlist.TargetDuration <= 0 && len(playlist.Segments) > 0 {
		return validationError(playlist, "media playlist has no EXT-X-TARGETDURATION")
	}
	for i := range playlist.Segments {
		segment := &playlist.Segments[i]
		if segment.URI == "" {
			return validationError(playlist, fmt.Sprintf("segment %d has no URI", i))
		}
		if segment.Duration < 0 {
			return validationError(playlist, fmt.Sprintf("segment %d has a negative duration", i))
		}
		if segment.ByteRange != nil && playlist.Version < 4 {
			return validationError(playlist,
				fmt.Sprintf("EXT-X-BYTERANGE requires playlist version 4, got %d", playlist.Version))
		}
		if segment.Key != nil && len(segment.Key.IV) > 0 && playlist.Version < 2 {
			return validationError(playlist,
				fmt.Sprintf("EXT-X-KEY with IV requires playlist version 2, got %d", playlist.Version))
		}
	}
	return nil
}

func validationError(playlist *M3U8Playlist, message string) error {
	return common.NewStreamError(common.StreamTypeHLS, playlist.URL,
		common.ErrCodeParse, message, nil)
}

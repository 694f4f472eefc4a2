package hls

import (
	"strconv"
	"strings"
	"time"
)

// Encryption methods carried by EXT-X-KEY. Anything other than NONE or
// AES-128 is surfaced as a DRM error.
const (
	KeyMethodNone      = "NONE"
	KeyMethodAES128    = "AES-128"
	KeyMethodSampleAES = "SAMPLE-AES"
)

// Playlist types carried by EXT-X-PLAYLIST-TYPE
const (
	PlaylistTypeVOD   = "VOD"
	PlaylistTypeEvent = "EVENT"
)

// M3U8Playlist represents a parsed M3U8 playlist snapshot
type M3U8Playlist struct {
	IsMaster              bool              `json:"is_master"`
	IsLive                bool              `json:"is_live"`
	Version               int               `json:"version"`
	TargetDuration        int               `json:"target_duration"`
	MediaSequence         int64             `json:"media_sequence"`
	DiscontinuitySequence int64             `json:"discontinuity_sequence"`
	PlaylistType          string            `json:"playlist_type,omitempty"`
	IFramesOnly           bool              `json:"iframes_only,omitempty"`
	Segments              []M3U8Segment     `json:"segments"`
	Variants              []M3U8Variant     `json:"variants"`
	Renditions            []M3U8Rendition   `json:"renditions,omitempty"`
	DateRanges            []DateRange       `json:"date_ranges,omitempty"`
	Headers               map[string]string `json:"headers"`
	URL                   string            `json:"url,omitempty"`
}

// IsVOD reports whether the playlist will never grow
func (p *M3U8Playlist) IsVOD() bool {
	return !p.IsLive || p.PlaylistType == PlaylistTypeVOD
}

// LastSequence returns the sequence number of the final segment, or -1 for
// an empty playlist
func (p *M3U8Playlist) LastSequence() int64 {
	if len(p.Segments) == 0 {
		return -1
	}
	return p.Segments[len(p.Segments)-1].Sequence
}

// M3U8Segment represents an individual HLS media segment
type M3U8Segment struct {
	URI           string      `json:"uri"`
	Sequence      int64       `json:"sequence"`
	Duration      float64     `json:"duration"`
	Title         string      `json:"title,omitempty"`
	ByteRange     *ByteRange  `json:"byte_range,omitempty"`
	Key           *SegmentKey `json:"key,omitempty"`
	Map           *SegmentMap `json:"map,omitempty"`
	Date          *time.Time  `json:"date,omitempty"`
	Discontinuity bool        `json:"discontinuity,omitempty"`
}

// ByteRange restricts a fetch to a sub-range of the segment URI
type ByteRange struct {
	Length int64 `json:"length"`
	Offset int64 `json:"offset"`
}

// HeaderValue renders the HTTP Range header value for the byterange
func (b *ByteRange) HeaderValue() string {
	return "bytes=" + strconv.FormatInt(b.Offset, 10) + "-" +
		strconv.FormatInt(b.Offset+b.Length-1, 10)
}

func (b *ByteRange) String() string {
	return strconv.FormatInt(b.Length, 10) + "@" + strconv.FormatInt(b.Offset, 10)
}

// SegmentKey represents an EXT-X-KEY tag. It stays active for all
// subsequent segments until replaced.
type SegmentKey struct {
	Method         string `json:"method"`
	URI            string `json:"uri,omitempty"`
	IV             []byte `json:"iv,omitempty"`
	Format         string `json:"format,omitempty"`
	FormatVersions string `json:"format_versions,omitempty"`
}

// Encrypted reports whether segments under this key need decryption
func (k *SegmentKey) Encrypted() bool {
	return k != nil && k.Method != "" && k.Method != KeyMethodNone
}

// SegmentMap represents an EXT-X-MAP initialization section
type SegmentMap struct {
	URI       string     `json:"uri"`
	ByteRange *ByteRange `json:"byte_range,omitempty"`
}

// Equal reports whether two maps reference the same initialization section
func (m *SegmentMap) Equal(other *SegmentMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.URI != other.URI {
		return false
	}
	if m.ByteRange == nil || other.ByteRange == nil {
		return m.ByteRange == other.ByteRange
	}
	return *m.ByteRange == *other.ByteRange
}

// M3U8Variant represents a stream variant from EXT-X-STREAM-INF
type M3U8Variant struct {
	URI        string  `json:"uri"`
	Bandwidth  int     `json:"bandwidth"`
	Codecs     string  `json:"codecs,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	Audio      string  `json:"audio,omitempty"`
	Video      string  `json:"video,omitempty"`
	Subtitles  string  `json:"subtitles,omitempty"`
}

// Height returns the declared vertical resolution, or 0 when absent
func (v *M3U8Variant) Height() int {
	_, h := parseResolution(v.Resolution)
	return h
}

// M3U8Rendition represents an EXT-X-MEDIA alternate rendition
type M3U8Rendition struct {
	Type            string `json:"type"`
	GroupID         string `json:"group_id"`
	Name            string `json:"name"`
	Language        string `json:"language,omitempty"`
	URI             string `json:"uri,omitempty"`
	Default         bool   `json:"default,omitempty"`
	Autoselect      bool   `json:"autoselect,omitempty"`
	Forced          bool   `json:"forced,omitempty"`
	Characteristics string `json:"characteristics,omitempty"`
}

// DateRange represents an EXT-X-DATERANGE tag
type DateRange struct {
	ID              string            `json:"id"`
	Class           string            `json:"class,omitempty"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         *time.Time        `json:"end_date,omitempty"`
	Duration        *float64          `json:"duration,omitempty"`
	PlannedDuration *float64          `json:"planned_duration,omitempty"`
	EndOnNext       bool              `json:"end_on_next,omitempty"`
	XAttrs          map[string]string `json:"x_attrs,omitempty"`
}

// parseResolution splits a WxH attribute value
func parseResolution(s string) (width, height int) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0
	}
	return w, h
}

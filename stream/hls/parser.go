package hls

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/common"
)

// Parser handles M3U8 playlist parsing
type Parser struct {
	tagHandlers map[string]TagHandler
}

// TagHandler defines how to handle specific M3U8 tags
type TagHandler struct {
	Name        string
	Handler     func(value string, playlist *M3U8Playlist, context *ParseContext) error
	Description string
}

// ParseContext holds the current parsing state
type ParseContext struct {
	CurrentSegment *M3U8Segment
	CurrentVariant *M3U8Variant
	LineNumber     int

	// Sticky tag state. EXT-X-KEY and EXT-X-MAP apply to every following
	// segment until replaced.
	ActiveKey *SegmentKey
	ActiveMap *SegmentMap

	// Pending one-shot segment tags
	Discontinuity bool
	ProgramDate   *time.Time

	// Byterange continuation: end offset of the previous range and the
	// URI it targeted
	lastRangeEnd int64
	lastRangeURI string

	sawEndlist bool
}

// NewParser creates a new M3U8 parser with default tag handlers
func NewParser() *Parser {
	parser := &Parser{
		tagHandlers: make(map[string]TagHandler),
	}

	parser.registerDefaultTagHandlers()

	return parser
}

// rangePending marks a byterange whose offset must be inherited from the
// previous range once the segment URI is known
const rangePending = int64(-1)

// Parse parses M3U8 playlist content from an io.Reader. baseURL is the
// playlist's own URL, used to resolve segment and variant references.
func (p *Parser) Parse(reader io.Reader, baseURL string) (*M3U8Playlist, error) {
	playlist := &M3U8Playlist{
		Segments: make([]M3U8Segment, 0),
		Variants: make([]M3U8Variant, 0),
		Headers:  make(map[string]string),
		IsLive:   true,
		URL:      baseURL,
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	context := &ParseContext{}

	if !scanner.Scan() {
		return nil, common.NewStreamError(common.StreamTypeHLS, baseURL,
			common.ErrCodeParse, "empty playlist", nil)
	}

	context.LineNumber++

	firstLine := strings.TrimSpace(scanner.Text())
	if firstLine != "#EXTM3U" {
		return nil, common.NewStreamErrorWithFields(common.StreamTypeHLS, baseURL,
			common.ErrCodeParse, "missing #EXTM3U header", nil,
			logging.Fields{"line_number": context.LineNumber})
	}

	for scanner.Scan() {
		context.LineNumber++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments (except M3U8 tags)
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#EXT")) {
			continue
		}

		var err error
		if strings.HasPrefix(line, "#EXT") {
			err = p.parseTag(line, playlist, context)
		} else {
			err = p.handleURI(line, playlist, context)
		}
		if err != nil {
			return nil, common.NewStreamErrorWithFields(common.StreamTypeHLS, baseURL,
				common.ErrCodeParse, "invalid M3U8 playlist", err,
				logging.Fields{"line_number": context.LineNumber})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, baseURL,
			common.ErrCodeParse, "error reading playlist", err)
	}

	if err := p.postProcess(playlist, context); err != nil {
		return nil, err
	}

	return playlist, nil
}

// parseTag parses individual M3U8 tags using registered handlers
func (p *Parser) parseTag(line string, playlist *M3U8Playlist, context *ParseContext) error {
	parts := strings.SplitN(line, ":", 2)
	tag := parts[0]
	value := ""
	if len(parts) > 1 {
		value = parts[1]
	}

	if handler, exists := p.tagHandlers[tag]; exists {
		return handler.Handler(value, playlist, context)
	}

	return p.handleUnknownTag(tag, value, playlist)
}

// handleURI completes the segment or variant opened by the preceding tag
func (p *Parser) handleURI(uri string, playlist *M3U8Playlist, context *ParseContext) error {
	switch {
	case context.CurrentSegment != nil:
		seg := context.CurrentSegment
		seg.URI = uri
		seg.Key = context.ActiveKey
		seg.Map = context.ActiveMap
		seg.Discontinuity = context.Discontinuity
		seg.Date = context.ProgramDate

		if seg.ByteRange != nil && seg.ByteRange.Offset == rangePending {
			if context.lastRangeURI != uri {
				return fmt.Errorf("EXT-X-BYTERANGE without offset after URI change at %q", uri)
			}
			seg.ByteRange.Offset = context.lastRangeEnd
		}
		if seg.ByteRange != nil {
			context.lastRangeEnd = seg.ByteRange.Offset + seg.ByteRange.Length
			context.lastRangeURI = uri
		}

		playlist.Segments = append(playlist.Segments, *seg)
		context.CurrentSegment = nil
		context.Discontinuity = false
		context.ProgramDate = nil
		return nil

	case context.CurrentVariant != nil:
		context.CurrentVariant.URI = uri
		playlist.Variants = append(playlist.Variants, *context.CurrentVariant)
		context.CurrentVariant = nil
		playlist.IsMaster = true
		return nil

	default:
		return fmt.Errorf("URI %q has no preceding EXTINF or EXT-X-STREAM-INF", uri)
	}
}

// handleUnknownTag keeps unrecognized tags around for debugging
func (p *Parser) handleUnknownTag(tag, value string, playlist *M3U8Playlist) error {
	logging.Debug("Ignoring unrecognized playlist tag", logging.Fields{
		"tag": tag,
		"url": playlist.URL,
	})

	if cleanTag, found := strings.CutPrefix(tag, "#EXT-X-"); found {
		playlist.Headers["custom_"+strings.ToLower(cleanTag)] = value
	} else if cleanTag, found := strings.CutPrefix(tag, "#EXT"); found {
		playlist.Headers["ext_"+strings.ToLower(cleanTag)] = value
	}
	return nil
}

// postProcess numbers segments and enforces structural invariants
func (p *Parser) postProcess(playlist *M3U8Playlist, context *ParseContext) error {
	if context.CurrentSegment != nil {
		return common.NewStreamError(common.StreamTypeHLS, playlist.URL,
			common.ErrCodeParse, "EXTINF not followed by a URI", nil)
	}
	if context.CurrentVariant != nil {
		return common.NewStreamError(common.StreamTypeHLS, playlist.URL,
			common.ErrCodeParse, "EXT-X-STREAM-INF not followed by a URI", nil)
	}
	if playlist.IsMaster && len(playlist.Segments) > 0 {
		return common.NewStreamError(common.StreamTypeHLS, playlist.URL,
			common.ErrCodeParse, "playlist mixes EXT-X-STREAM-INF and EXTINF", nil)
	}

	if context.sawEndlist {
		playlist.IsLive = false
	}
	if playlist.IsMaster {
		playlist.IsLive = false
	}

	for i := range playlist.Segments {
		playlist.Segments[i].Sequence = playlist.MediaSequence + int64(i)
	}

	p.resolveURIs(playlist)

	return nil
}

// resolveURIs rewrites every reference as an absolute URL against the
// playlist's own URL. Keys and maps are shared between segments, so
// resolution is idempotent.
func (p *Parser) resolveURIs(playlist *M3U8Playlist) {
	if playlist.URL == "" {
		return
	}
	for i := range playlist.Segments {
		segment := &playlist.Segments[i]
		segment.URI = common.ResolveURL(playlist.URL, segment.URI)
		if segment.Key != nil && segment.Key.URI != "" {
			segment.Key.URI = common.ResolveURL(playlist.URL, segment.Key.URI)
		}
		if segment.Map != nil {
			segment.Map.URI = common.ResolveURL(playlist.URL, segment.Map.URI)
		}
	}
	for i := range playlist.Variants {
		playlist.Variants[i].URI = common.ResolveURL(playlist.URL, playlist.Variants[i].URI)
	}
	for i := range playlist.Renditions {
		if playlist.Renditions[i].URI != "" {
			playlist.Renditions[i].URI = common.ResolveURL(playlist.URL, playlist.Renditions[i].URI)
		}
	}
}

// registerDefaultTagHandlers registers all supported M3U8 tag handlers
func (p *Parser) registerDefaultTagHandlers() {
	handlers := []TagHandler{
		{
			Name:        "#EXT-X-VERSION",
			Description: "Playlist version",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				if v, err := strconv.Atoi(value); err == nil {
					playlist.Version = v
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-TARGETDURATION",
			Description: "Target segment duration",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				if v, err := strconv.Atoi(value); err == nil {
					playlist.TargetDuration = v
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-MEDIA-SEQUENCE",
			Description: "Media sequence number",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				if v, err := strconv.ParseInt(value, 10, 64); err == nil {
					playlist.MediaSequence = v
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-DISCONTINUITY-SEQUENCE",
			Description: "Discontinuity sequence number",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				if v, err := strconv.ParseInt(value, 10, 64); err == nil {
					playlist.DiscontinuitySequence = v
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-PLAYLIST-TYPE",
			Description: "VOD or EVENT playlist",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				playlist.PlaylistType = strings.TrimSpace(value)
				return nil
			},
		},
		{
			Name:        "#EXT-X-ENDLIST",
			Description: "End of playlist marker",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				context.sawEndlist = true
				return nil
			},
		},
		{
			Name:        "#EXT-X-I-FRAMES-ONLY",
			Description: "I-frame playlist marker",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				playlist.IFramesOnly = true
				return nil
			},
		},
		{
			Name:        "#EXT-X-START",
			Description: "Playback start point",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				if offsetStr := extractAttributeValue(value, "TIME-OFFSET"); offsetStr != "" {
					playlist.Headers["start_time_offset"] = offsetStr
				}
				return nil
			},
		},
		{
			Name:        "#EXTINF",
			Description: "Segment information",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				context.CurrentSegment = &M3U8Segment{}

				parts := strings.SplitN(value, ",", 2)
				if len(parts) > 0 {
					if duration, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err == nil {
						context.CurrentSegment.Duration = duration
					}
				}
				if len(parts) > 1 {
					context.CurrentSegment.Title = parts[1]
				}

				return nil
			},
		},
		{
			Name:        "#EXT-X-BYTERANGE",
			Description: "Byte range for segment",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				if context.CurrentSegment == nil {
					return fmt.Errorf("EXT-X-BYTERANGE outside of a segment")
				}
				br, err := parseByteRange(value)
				if err != nil {
					return err
				}
				context.CurrentSegment.ByteRange = br
				return nil
			},
		},
		{
			Name:        "#EXT-X-DISCONTINUITY",
			Description: "Content discontinuity",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				context.Discontinuity = true
				return nil
			},
		},
		{
			Name:        "#EXT-X-KEY",
			Description: "Segment encryption key",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				key, err := parseKey(value)
				if err != nil {
					return err
				}
				if key.Method == KeyMethodNone {
					context.ActiveKey = nil
				} else {
					context.ActiveKey = key
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-MAP",
			Description: "Media initialization section",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				attrs := parseAttributes(value)
				uri := unquote(attrs["URI"])
				if uri == "" {
					return fmt.Errorf("EXT-X-MAP missing URI")
				}
				m := &SegmentMap{URI: uri}
				if rangeStr := unquote(attrs["BYTERANGE"]); rangeStr != "" {
					br, err := parseByteRange(rangeStr)
					if err != nil {
						return err
					}
					if br.Offset == rangePending {
						br.Offset = 0
					}
					m.ByteRange = br
				}
				context.ActiveMap = m
				return nil
			},
		},
		{
			Name:        "#EXT-X-PROGRAM-DATE-TIME",
			Description: "Program date and time",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value)); err == nil {
					context.ProgramDate = &t
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-DATERANGE",
			Description: "Date range metadata",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				dr, err := parseDateRange(value)
				if err != nil {
					return err
				}
				playlist.DateRanges = append(playlist.DateRanges, *dr)
				return nil
			},
		},
		{
			Name:        "#EXT-X-STREAM-INF",
			Description: "Stream variant information",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				attrs := parseAttributes(value)
				variant := &M3U8Variant{
					Codecs:     unquote(attrs["CODECS"]),
					Resolution: attrs["RESOLUTION"],
					Audio:      unquote(attrs["AUDIO"]),
					Video:      unquote(attrs["VIDEO"]),
					Subtitles:  unquote(attrs["SUBTITLES"]),
				}
				if bandwidth, exists := attrs["BANDWIDTH"]; exists {
					if b, err := strconv.Atoi(bandwidth); err == nil {
						variant.Bandwidth = b
					}
				}
				if frameRate, exists := attrs["FRAME-RATE"]; exists {
					if f, err := strconv.ParseFloat(frameRate, 64); err == nil {
						variant.FrameRate = f
					}
				}
				context.CurrentVariant = variant
				return nil
			},
		},
		{
			Name:        "#EXT-X-MEDIA",
			Description: "Alternate rendition",
			Handler: func(value string, playlist *M3U8Playlist, context *ParseContext) error {
				attrs := parseAttributes(value)
				playlist.Renditions = append(playlist.Renditions, M3U8Rendition{
					Type:            attrs["TYPE"],
					GroupID:         unquote(attrs["GROUP-ID"]),
					Name:            unquote(attrs["NAME"]),
					Language:        unquote(attrs["LANGUAGE"]),
					URI:             unquote(attrs["URI"]),
					Default:         attrs["DEFAULT"] == "YES",
					Autoselect:      attrs["AUTOSELECT"] == "YES",
					Forced:          attrs["FORCED"] == "YES",
					Characteristics: unquote(attrs["CHARACTERISTICS"]),
				})
				return nil
			},
		},
	}

	for _, handler := range handlers {
		p.RegisterTagHandler(handler)
	}
}

// RegisterTagHandler registers a new tag handler
func (p *Parser) RegisterTagHandler(handler TagHandler) {
	p.tagHandlers[handler.Name] = handler
}

// GetRegisteredTags returns a list of all registered tag handlers
func (p *Parser) GetRegisteredTags() []string {
	tags := make([]string, 0, len(p.tagHandlers))
	for tag := range p.tagHandlers {
		tags = append(tags, tag)
	}
	return tags
}

// parseKey parses an EXT-X-KEY attribute list
func parseKey(value string) (*SegmentKey, error) {
	attrs := parseAttributes(value)

	method := strings.TrimSpace(attrs["METHOD"])
	if method == "" {
		return nil, fmt.Errorf("EXT-X-KEY missing METHOD")
	}

	key := &SegmentKey{
		Method:         method,
		URI:            unquote(attrs["URI"]),
		Format:         unquote(attrs["KEYFORMAT"]),
		FormatVersions: unquote(attrs["KEYFORMATVERSIONS"]),
	}

	if ivStr, exists := attrs["IV"]; exists {
		iv, err := parseHexValue(ivStr)
		if err != nil {
			return nil, fmt.Errorf("EXT-X-KEY bad IV %q: %w", ivStr, err)
		}
		if len(iv) != 16 {
			return nil, fmt.Errorf("EXT-X-KEY IV must be 128 bits, got %d bytes", len(iv))
		}
		key.IV = iv
	}

	if key.Method != KeyMethodNone && key.URI == "" {
		return nil, fmt.Errorf("EXT-X-KEY METHOD=%s missing URI", key.Method)
	}

	return key, nil
}

// parseByteRange parses "length[@offset]". A missing offset yields the
// rangePending sentinel, resolved against the previous range at URI time.
func parseByteRange(value string) (*ByteRange, error) {
	parts := strings.SplitN(strings.TrimSpace(value), "@", 2)

	length, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad byterange length %q", parts[0])
	}

	br := &ByteRange{Length: length, Offset: rangePending}
	if len(parts) == 2 {
		offset, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad byterange offset %q", parts[1])
		}
		br.Offset = offset
	}

	return br, nil
}

// parseDateRange parses an EXT-X-DATERANGE attribute list
func parseDateRange(value string) (*DateRange, error) {
	attrs := parseAttributes(value)

	id := unquote(attrs["ID"])
	if id == "" {
		return nil, fmt.Errorf("EXT-X-DATERANGE missing ID")
	}

	dr := &DateRange{
		ID:        id,
		Class:     unquote(attrs["CLASS"]),
		EndOnNext: attrs["END-ON-NEXT"] == "YES",
		XAttrs:    make(map[string]string),
	}

	startStr := unquote(attrs["START-DATE"])
	if startStr == "" {
		return nil, fmt.Errorf("EXT-X-DATERANGE missing START-DATE")
	}
	start, err := time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return nil, fmt.Errorf("EXT-X-DATERANGE bad START-DATE %q", startStr)
	}
	dr.StartDate = start

	if endStr := unquote(attrs["END-DATE"]); endStr != "" {
		end, err := time.Parse(time.RFC3339Nano, endStr)
		if err != nil {
			return nil, fmt.Errorf("EXT-X-DATERANGE bad END-DATE %q", endStr)
		}
		dr.EndDate = &end
	}

	if durStr := attrs["DURATION"]; durStr != "" {
		if d, err := strconv.ParseFloat(durStr, 64); err == nil {
			dr.Duration = &d
		}
	}
	if durStr := attrs["PLANNED-DURATION"]; durStr != "" {
		if d, err := strconv.ParseFloat(durStr, 64); err == nil {
			dr.PlannedDuration = &d
		}
	}

	for k, v := range attrs {
		if strings.HasPrefix(k, "X-") {
			dr.XAttrs[k] = unquote(v)
		}
	}

	return dr, nil
}

// parseHexValue decodes a 0x-prefixed hex attribute value
func parseHexValue(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	cut, found := strings.CutPrefix(value, "0x")
	if !found {
		cut, found = strings.CutPrefix(value, "0X")
	}
	if !found {
		return nil, fmt.Errorf("missing 0x prefix")
	}
	if len(cut)%2 == 1 {
		cut = "0" + cut
	}
	return hex.DecodeString(cut)
}

// extractAttributeValue extracts a specific attribute value from a string
func extractAttributeValue(attrString, key string) string {
	attrs := parseAttributes(attrString)
	if value, exists := attrs[key]; exists {
		return unquote(value)
	}
	return ""
}

// unquote strips surrounding double quotes from an attribute value
func unquote(value string) string {
	return strings.Trim(value, "\"")
}

// parseAttributes parses M3U8 attribute lists like
// 'BANDWIDTH=1280000,CODECS="avc1.42e00a,mp4a.40.2"'. Commas inside quoted
// values do not split.
func parseAttributes(attrString string) map[string]string {
	attrs := make(map[string]string)

	var parts []string
	var current strings.Builder
	inQuotes := false

	for _, char := range attrString {
		switch char {
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(char)
		case ',':
			if inQuotes {
				current.WriteRune(char)
			} else {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			attrs[kv[0]] = kv[1]
		}
	}

	return attrs
}

package hls

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"time"
)

// Encode serializes the playlist back to M3U8 text. Sticky EXT-X-KEY and
// EXT-X-MAP tags are emitted only when the active value changes between
// segments. Unrecognized tags collected during parsing are not re-emitted.
func (p *M3U8Playlist) Encode() *bytes.Buffer {
	var buf bytes.Buffer

	buf.WriteString("#EXTM3U\n")

	if p.Version > 0 {
		buf.WriteString("#EXT-X-VERSION:")
		buf.WriteString(strconv.Itoa(p.Version))
		buf.WriteByte('\n')
	}

	if p.IsMaster {
		p.encodeMaster(&buf)
	} else {
		p.encodeMedia(&buf)
	}

	return &buf
}

func (p *M3U8Playlist) String() string {
	return p.Encode().String()
}

func (p *M3U8Playlist) encodeMaster(buf *bytes.Buffer) {
	for _, r := range p.Renditions {
		buf.WriteString("#EXT-X-MEDIA:TYPE=")
		buf.WriteString(r.Type)
		buf.WriteString(",GROUP-ID=\"")
		buf.WriteString(r.GroupID)
		buf.WriteString("\",NAME=\"")
		buf.WriteString(r.Name)
		buf.WriteByte('"')
		if r.Language != "" {
			buf.WriteString(",LANGUAGE=\"")
			buf.WriteString(r.Language)
			buf.WriteByte('"')
		}
		writeYesNo(buf, "DEFAULT", r.Default)
		writeYesNo(buf, "AUTOSELECT", r.Autoselect)
		writeYesNo(buf, "FORCED", r.Forced)
		if r.Characteristics != "" {
			buf.WriteString(",CHARACTERISTICS=\"")
			buf.WriteString(r.Characteristics)
			buf.WriteByte('"')
		}
		if r.URI != "" {
			buf.WriteString(",URI=\"")
			buf.WriteString(r.URI)
			buf.WriteByte('"')
		}
		buf.WriteByte('\n')
	}

	for _, v := range p.Variants {
		buf.WriteString("#EXT-X-STREAM-INF:BANDWIDTH=")
		buf.WriteString(strconv.Itoa(v.Bandwidth))
		if v.Resolution != "" {
			buf.WriteString(",RESOLUTION=")
			buf.WriteString(v.Resolution)
		}
		if v.Codecs != "" {
			buf.WriteString(",CODECS=\"")
			buf.WriteString(v.Codecs)
			buf.WriteByte('"')
		}
		if v.FrameRate > 0 {
			buf.WriteString(",FRAME-RATE=")
			buf.WriteString(strconv.FormatFloat(v.FrameRate, 'f', -1, 64))
		}
		if v.Audio != "" {
			buf.WriteString(",AUDIO=\"")
			buf.WriteString(v.Audio)
			buf.WriteByte('"')
		}
		if v.Video != "" {
			buf.WriteString(",VIDEO=\"")
			buf.WriteString(v.Video)
			buf.WriteByte('"')
		}
		if v.Subtitles != "" {
			buf.WriteString(",SUBTITLES=\"")
			buf.WriteString(v.Subtitles)
			buf.WriteByte('"')
		}
		buf.WriteByte('\n')
		buf.WriteString(v.URI)
		buf.WriteByte('\n')
	}
}

func (p *M3U8Playlist) encodeMedia(buf *bytes.Buffer) {
	if p.TargetDuration > 0 {
		buf.WriteString("#EXT-X-TARGETDURATION:")
		buf.WriteString(strconv.Itoa(p.TargetDuration))
		buf.WriteByte('\n')
	}
	buf.WriteString("#EXT-X-MEDIA-SEQUENCE:")
	buf.WriteString(strconv.FormatInt(p.MediaSequence, 10))
	buf.WriteByte('\n')
	if p.DiscontinuitySequence != 0 {
		buf.WriteString("#EXT-X-DISCONTINUITY-SEQUENCE:")
		buf.WriteString(strconv.FormatInt(p.DiscontinuitySequence, 10))
		buf.WriteByte('\n')
	}
	if p.PlaylistType != "" {
		buf.WriteString("#EXT-X-PLAYLIST-TYPE:")
		buf.WriteString(p.PlaylistType)
		buf.WriteByte('\n')
	}
	if p.IFramesOnly {
		buf.WriteString("#EXT-X-I-FRAMES-ONLY\n")
	}

	for _, dr := range p.DateRanges {
		encodeDateRange(buf, &dr)
	}

	var activeKey *SegmentKey
	var activeMap *SegmentMap

	for i := range p.Segments {
		seg := &p.Segments[i]

		if !keysEqual(seg.Key, activeKey) {
			encodeKey(buf, seg.Key)
			activeKey = seg.Key
		}
		if !seg.Map.Equal(activeMap) && seg.Map != nil {
			encodeMap(buf, seg.Map)
			activeMap = seg.Map
		}
		if seg.Discontinuity {
			buf.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		if seg.Date != nil {
			buf.WriteString("#EXT-X-PROGRAM-DATE-TIME:")
			buf.WriteString(seg.Date.Format(time.RFC3339Nano))
			buf.WriteByte('\n')
		}
		buf.WriteString("#EXTINF:")
		buf.WriteString(strconv.FormatFloat(seg.Duration, 'f', -1, 64))
		buf.WriteByte(',')
		buf.WriteString(seg.Title)
		buf.WriteByte('\n')
		if seg.ByteRange != nil {
			buf.WriteString("#EXT-X-BYTERANGE:")
			buf.WriteString(strconv.FormatInt(seg.ByteRange.Length, 10))
			buf.WriteByte('@')
			buf.WriteString(strconv.FormatInt(seg.ByteRange.Offset, 10))
			buf.WriteByte('\n')
		}
		buf.WriteString(seg.URI)
		buf.WriteByte('\n')
	}

	if !p.IsLive {
		buf.WriteString("#EXT-X-ENDLIST\n")
	}
}

func encodeKey(buf *bytes.Buffer, key *SegmentKey) {
	buf.WriteString("#EXT-X-KEY:METHOD=")
	if key == nil {
		buf.WriteString(KeyMethodNone)
		buf.WriteByte('\n')
		return
	}
	buf.WriteString(key.Method)
	if key.URI != "" {
		buf.WriteString(",URI=\"")
		buf.WriteString(key.URI)
		buf.WriteByte('"')
	}
	if len(key.IV) > 0 {
		buf.WriteString(",IV=0x")
		buf.WriteString(hex.EncodeToString(key.IV))
	}
	if key.Format != "" {
		buf.WriteString(",KEYFORMAT=\"")
		buf.WriteString(key.Format)
		buf.WriteByte('"')
	}
	if key.FormatVersions != "" {
		buf.WriteString(",KEYFORMATVERSIONS=\"")
		buf.WriteString(key.FormatVersions)
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

func encodeMap(buf *bytes.Buffer, m *SegmentMap) {
	buf.WriteString("#EXT-X-MAP:URI=\"")
	buf.WriteString(m.URI)
	buf.WriteByte('"')
	if m.ByteRange != nil {
		buf.WriteString(",BYTERANGE=\"")
		buf.WriteString(m.ByteRange.String())
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

func encodeDateRange(buf *bytes.Buffer, dr *DateRange) {
	buf.WriteString("#EXT-X-DATERANGE:ID=\"")
	buf.WriteString(dr.ID)
	buf.WriteByte('"')
	if dr.Class != "" {
		buf.WriteString(",CLASS=\"")
		buf.WriteString(dr.Class)
		buf.WriteByte('"')
	}
	buf.WriteString(",START-DATE=\"")
	buf.WriteString(dr.StartDate.Format(time.RFC3339Nano))
	buf.WriteByte('"')
	if dr.EndDate != nil {
		buf.WriteString(",END-DATE=\"")
		buf.WriteString(dr.EndDate.Format(time.RFC3339Nano))
		buf.WriteByte('"')
	}
	if dr.Duration != nil {
		buf.WriteString(",DURATION=")
		buf.WriteString(strconv.FormatFloat(*dr.Duration, 'f', -1, 64))
	}
	if dr.PlannedDuration != nil {
		buf.WriteString(",PLANNED-DURATION=")
		buf.WriteString(strconv.FormatFloat(*dr.PlannedDuration, 'f', -1, 64))
	}
	for k, v := range dr.XAttrs {
		buf.WriteByte(',')
		buf.WriteString(k)
		buf.WriteString("=\"")
		buf.WriteString(v)
		buf.WriteByte('"')
	}
	if dr.EndOnNext {
		buf.WriteString(",END-ON-NEXT=YES")
	}
	buf.WriteByte('\n')
}

func keysEqual(a, b *SegmentKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Method == b.Method && a.URI == b.URI &&
		bytes.Equal(a.IV, b.IV) && a.Format == b.Format &&
		a.FormatVersions == b.FormatVersions
}

func writeYesNo(buf *bytes.Buffer, name string, value bool) {
	buf.WriteByte(',')
	buf.WriteString(name)
	if value {
		buf.WriteString("=YES")
	} else {
		buf.WriteString("=NO")
	}
}

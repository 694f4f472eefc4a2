package hls

// Sample playlists shared across the package tests
var (
	TestMasterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=1280000,CODECS="avc1.42e00a,mp4a.40.2",RESOLUTION=852x480
480p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,CODECS="avc1.42e00a,mp4a.40.2",RESOLUTION=1280x720
720p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,CODECS="avc1.42e00a,mp4a.40.2",RESOLUTION=1920x1080
1080p.m3u8`

	TestMasterPlaylistWithAudio = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",LANGUAGE="en-US",DEFAULT=YES,AUTOSELECT=YES,URI="audio_en.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="Deutsch",LANGUAGE="de",URI="audio_de.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1280x720,AUDIO="aud"
720p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=852x480,AUDIO="aud"
480p.m3u8`

	TestMasterPlaylistBandwidthOnly = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=64000
low/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=128000
high/playlist.m3u8`

	TestMediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:9.009,
segment0.ts
#EXTINF:9.009,
segment1.ts
#EXTINF:9.009,
segment2.ts
#EXT-X-ENDLIST`

	TestLivePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:123456
#EXTINF:6.0,
segment123456.ts
#EXTINF:6.0,
segment123457.ts
#EXTINF:6.0,
segment123458.ts
#EXTINF:6.0,
segment123459.ts
#EXTINF:6.0,
segment123460.ts`

	TestEncryptedPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:7
#EXT-X-KEY:METHOD=AES-128,URI="key.bin",IV=0x00000000000000000000000000000001
#EXTINF:10.0,
segment7.ts
#EXTINF:10.0,
segment8.ts
#EXT-X-KEY:METHOD=NONE
#EXTINF:10.0,
segment9.ts
#EXT-X-ENDLIST`

	TestSampleAESPlaylist = `#EXTM3U
#EXT-X-VERSION:5
#EXT-X-TARGETDURATION:10
#EXT-X-KEY:METHOD=SAMPLE-AES,URI="skd://key"
#EXTINF:10.0,
segment0.ts
#EXT-X-ENDLIST`

	TestByteRangePlaylist = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:9.0,
#EXT-X-BYTERANGE:75232@0
media.ts
#EXTINF:9.0,
#EXT-X-BYTERANGE:82112
media.ts
#EXTINF:9.0,
#EXT-X-BYTERANGE:69864
media.ts
#EXT-X-ENDLIST`

	TestMapPlaylist = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-MAP:URI="init.mp4"
#EXTINF:4.0,
segment0.m4s
#EXTINF:4.0,
segment1.m4s
#EXT-X-ENDLIST`

	TestDiscontinuityPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
content0.ts
#EXT-X-DISCONTINUITY
#EXTINF:10.0,
ad0.ts
#EXT-X-DISCONTINUITY
#EXTINF:10.0,
content1.ts
#EXT-X-ENDLIST`

	TestDateRangePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-DATERANGE:ID="ad-break-1",CLASS="com.example.ad",START-DATE="2024-03-01T12:00:00Z",DURATION=30.0,X-AD-SYSTEM="example"
#EXT-X-PROGRAM-DATE-TIME:2024-03-01T12:00:00Z
#EXTINF:6.0,
segment100.ts
#EXTINF:6.0,
segment101.ts
#EXT-X-ENDLIST`
)

// SPDX-License-Identifier: MIT

// Package playlist renders HLS master and media playlists from session state.
package playlist

import (
	"bytes"
	"fmt"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/pipeline/profiles"
)

const (
	// ContentType is served with every playlist.
	ContentType = "application/vnd.apple.mpegurl"

	// MediaPlaylistName is the per-rendition playlist file name.
	MediaPlaylistName = "stream.m3u8"

	audioCodecString = "mp4a.40.2"
)

var videoCodecStrings = map[string]string{
	model.CodecH264: "avc1.640028",
	model.CodecAV1:  "av01.0.08M.08",
	model.CodecHEVC: "hvc1.1.6.L120.90",
}

// VideoCodecString returns the RFC 6381 codec string for a family,
// defaulting to H.264.
func VideoCodecString(family string) string {
	if s, ok := videoCodecStrings[family]; ok {
		return s
	}
	return videoCodecStrings[model.CodecH264]
}

// Master renders the master playlist from the renditions the session
// launches. Sessions without a ladder get a single entry pointing at the
// media playlist next to it.
func Master(s *model.StreamSession) string {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")

	codecs := fmt.Sprintf("%s,%s", VideoCodecString(s.Decision.VideoCodecFamily), audioCodecString)

	for _, v := range profiles.Targets(s) {
		fmt.Fprintf(buf, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=%q\n",
			v.VideoBitrate+v.AudioBitrate, v.Width, v.Height, codecs)
		if v.Label != model.SingleRendition {
			buf.WriteString(v.Label + "/")
		}
		buf.WriteString(MediaPlaylistName + "\n")
	}
	return buf.String()
}

// SegmentCount is ceil(duration / segment duration) at millisecond precision.
func SegmentCount(duration time.Duration, segmentSeconds int) int {
	if segmentSeconds <= 0 {
		return 0
	}
	durMs := duration.Milliseconds()
	segMs := int64(segmentSeconds) * 1000
	if durMs <= 0 {
		return 0
	}
	return int((durMs + segMs - 1) / segMs)
}

// Media renders the VOD media playlist of one rendition. Every rendition of a
// session shares the same segment timeline.
func Media(s *model.StreamSession, segmentSeconds int) string {
	container := s.Decision.Container
	ext := container.SegmentExtension()

	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	if container == model.ContainerFMP4 {
		buf.WriteString("#EXT-X-VERSION:7\n")
	} else {
		buf.WriteString("#EXT-X-VERSION:3\n")
	}
	fmt.Fprintf(buf, "#EXT-X-TARGETDURATION:%d\n", segmentSeconds)
	buf.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	buf.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	if container == model.ContainerFMP4 {
		fmt.Fprintf(buf, "#EXT-X-MAP:URI=%q\n", model.InitSegmentName)
	}

	durMs := s.Probe.Duration.Milliseconds()
	segMs := int64(segmentSeconds) * 1000
	count := SegmentCount(s.Probe.Duration, segmentSeconds)
	for i := 0; i < count; i++ {
		ms := segMs
		if tail := durMs - int64(i)*segMs; tail < segMs {
			ms = tail
		}
		fmt.Fprintf(buf, "#EXTINF:%.6f,\n", float64(ms)/1000)
		fmt.Fprintf(buf, "segment%d%s\n", i, ext)
	}
	buf.WriteString("#EXT-X-ENDLIST\n")
	return buf.String()
}

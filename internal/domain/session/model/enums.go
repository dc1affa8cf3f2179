// SPDX-License-Identifier: MIT

package model

// TranscodeMode is the closed set of delivery strategies for a session.
type TranscodeMode string

const (
	ModeRemux            TranscodeMode = "REMUX"
	ModePartialTranscode TranscodeMode = "PARTIAL_TRANSCODE"
	ModeFullTranscode    TranscodeMode = "FULL_TRANSCODE"
)

// RequiresTranscode reports whether the mode runs an encoder and therefore
// occupies transcode capacity.
func (m TranscodeMode) RequiresTranscode() bool {
	switch m {
	case ModeRemux:
		return false
	case ModePartialTranscode, ModeFullTranscode:
		return true
	}
	return true
}

// ContainerFormat is the HLS segment container.
type ContainerFormat string

const (
	ContainerMPEGTS ContainerFormat = "MPEGTS"
	ContainerFMP4   ContainerFormat = "FMP4"
)

// InitSegmentName is the fixed fMP4 initialization segment file name.
const InitSegmentName = "init.mp4"

// ContainerFor is the fixed codec family to container mapping.
// av1 and hevc require fMP4 segments; everything else is delivered as MPEG-TS.
func ContainerFor(family string) ContainerFormat {
	switch family {
	case CodecAV1, CodecHEVC:
		return ContainerFMP4
	default:
		return ContainerMPEGTS
	}
}

// SegmentExtension returns the media segment extension including the dot.
func (c ContainerFormat) SegmentExtension() string {
	if c == ContainerFMP4 {
		return ".m4s"
	}
	return ".ts"
}

// ContentType returns the MIME type used when serving media segments.
func (c ContainerFormat) ContentType() string {
	if c == ContainerFMP4 {
		return "video/mp4"
	}
	return "video/mp2t"
}

// TranscodeStatus is the health of one running variant process.
type TranscodeStatus string

const (
	TranscodeActive TranscodeStatus = "ACTIVE"
	TranscodeFailed TranscodeStatus = "FAILED"
)

// SessionState is the lifecycle of a streaming session.
type SessionState string

const (
	SessionCreated   SessionState = "CREATED"
	SessionActive    SessionState = "ACTIVE"
	SessionDestroyed SessionState = "DESTROYED"
)

// QualityTier is the client-requested quality.
type QualityTier string

const (
	QualityAuto  QualityTier = "AUTO"
	Quality1080p QualityTier = "1080p"
	Quality720p  QualityTier = "720p"
	Quality480p  QualityTier = "480p"
	Quality360p  QualityTier = "360p"
)

// Canonical codec family names.
const (
	CodecH264 = "h264"
	CodecHEVC = "hevc"
	CodecAV1  = "av1"
	CodecAAC  = "aac"
)

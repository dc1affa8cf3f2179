package decision

import (
	"strings"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// Reason explains which branch of the decision table was taken.
type Reason string

const (
	ReasonCompatible        Reason = "video_and_audio_compatible"
	ReasonAudioIncompatible Reason = "audio_incompatible"
	ReasonVideoIncompatible Reason = "video_incompatible"
)

// BaselineCodec is used when the client supports none of the preferred codecs.
const BaselineCodec = model.CodecH264

// codecPreference is the fixed full-transcode target order.
var codecPreference = []string{model.CodecAV1, model.CodecHEVC, model.CodecH264}

// Decide maps a probed source and the client's capabilities to a delivery strategy.
func Decide(probe model.MediaProbe, opts model.StreamingOptions) model.TranscodeDecision {
	d, _ := DecideWithReason(probe, opts)
	return d
}

// DecideWithReason is Decide plus the branch taken, for logging and metrics.
func DecideWithReason(probe model.MediaProbe, opts model.StreamingOptions) (model.TranscodeDecision, Reason) {
	clientCodecs := normalizedCodecs(opts.SupportedCodecs)
	source := canonicalCodec(probe.VideoCodec)

	videoOK := source != "" && contains(clientCodecs, source)
	audioOK := canonicalCodec(probe.AudioCodec) == model.CodecAAC

	if videoOK {
		mode, reason := model.ModeRemux, ReasonCompatible
		if !audioOK {
			mode, reason = model.ModePartialTranscode, ReasonAudioIncompatible
		}
		return model.TranscodeDecision{
			Mode:                   mode,
			VideoCodecFamily:       source,
			AudioCodec:             model.CodecAAC,
			Container:              model.ContainerFor(source),
			NeedsKeyframeAlignment: true,
		}, reason
	}

	family := BaselineCodec
	for _, c := range codecPreference {
		if contains(clientCodecs, c) {
			family = c
			break
		}
	}
	return model.TranscodeDecision{
		Mode:                   model.ModeFullTranscode,
		VideoCodecFamily:       family,
		AudioCodec:             model.CodecAAC,
		Container:              model.ContainerFor(family),
		NeedsKeyframeAlignment: false,
	}, ReasonVideoIncompatible
}

// CanonicalCodec folds ffprobe and client codec spellings into a family name.
func CanonicalCodec(raw string) string {
	return canonicalCodec(raw)
}

func normalizedCodecs(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		c := canonicalCodec(v)
		if c == "" || contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func canonicalCodec(raw string) string {
	v := normalizeToken(raw)
	switch v {
	case "h264", "avc", "avc1", "h.264":
		return model.CodecH264
	case "hevc", "h265", "h.265", "hvc1", "hev1":
		return model.CodecHEVC
	case "av1", "av01":
		return model.CodecAV1
	case "aac", "mp4a":
		return model.CodecAAC
	default:
		return v
	}
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func contains(slice []string, value string) bool {
	v := normalizeToken(value)
	for _, item := range slice {
		if normalizeToken(item) == v {
			return true
		}
	}
	return false
}

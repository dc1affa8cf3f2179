// SPDX-License-Identifier: MIT

package profiles

import (
	"fmt"
	"strings"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// Tier is one row of the fixed ABR table.
type Tier struct {
	Quality      model.QualityTier
	Width        int
	Height       int
	VideoBitrate int64
	AudioBitrate int64
}

// Tiers is ordered highest resolution first.
var Tiers = []Tier{
	{Quality: model.Quality1080p, Width: 1920, Height: 1080, VideoBitrate: 5_000_000, AudioBitrate: 128_000},
	{Quality: model.Quality720p, Width: 1280, Height: 720, VideoBitrate: 3_000_000, AudioBitrate: 128_000},
	{Quality: model.Quality480p, Width: 854, Height: 480, VideoBitrate: 1_500_000, AudioBitrate: 96_000},
	{Quality: model.Quality360p, Width: 640, Height: 360, VideoBitrate: 800_000, AudioBitrate: 64_000},
}

const (
	fallbackVideoBitrate int64 = 3_000_000
	fallbackAudioBitrate int64 = 128_000

	// SourceLabel names the variant synthesized when no tier fits.
	SourceLabel = "source"
)

var aliasMap = map[string]model.QualityTier{
	"":        model.QualityAuto,
	"auto":    model.QualityAuto,
	"default": model.QualityAuto,
	"1080p":   model.Quality1080p,
	"fhd":     model.Quality1080p,
	"720p":    model.Quality720p,
	"hd":      model.Quality720p,
	"480p":    model.Quality480p,
	"sd":      model.Quality480p,
	"360p":    model.Quality360p,
	"low":     model.Quality360p,
}

// ParseQuality normalizes a client supplied quality name. Unknown names are rejected.
func ParseQuality(raw string) (model.QualityTier, error) {
	q, ok := aliasMap[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown quality %q", raw)
	}
	return q, nil
}

func (t Tier) variant() model.QualityVariant {
	return model.QualityVariant{
		Label:        string(t.Quality),
		Width:        t.Width,
		Height:       t.Height,
		VideoBitrate: t.VideoBitrate,
		AudioBitrate: t.AudioBitrate,
	}
}

// Ladder returns the ABR variants for a session, highest first. Only AUTO
// quality with a full transcode produces a ladder; everything else is a
// single rendition and yields nil. A produced ladder is never empty.
func Ladder(probe model.MediaProbe, opts model.StreamingOptions, d model.TranscodeDecision) []model.QualityVariant {
	if opts.EffectiveQuality() != model.QualityAuto || d.Mode != model.ModeFullTranscode {
		return nil
	}

	maxHeight := probe.Height
	if opts.MaxHeight != nil && *opts.MaxHeight < maxHeight {
		maxHeight = *opts.MaxHeight
	}

	var out []model.QualityVariant
	for _, t := range Tiers {
		if t.Height > maxHeight {
			continue
		}
		if opts.MaxBitrate != nil && t.VideoBitrate > *opts.MaxBitrate {
			continue
		}
		out = append(out, t.variant())
	}
	if len(out) == 0 {
		out = append(out, sourceVariant(probe))
	}
	return out
}

// sourceVariant mirrors the source so that a session is never rendition-less.
func sourceVariant(probe model.MediaProbe) model.QualityVariant {
	bitrate := probe.Bitrate
	if bitrate <= 0 {
		bitrate = fallbackVideoBitrate
	}
	return model.QualityVariant{
		Label:        SourceLabel,
		Width:        probe.Width,
		Height:       probe.Height,
		VideoBitrate: bitrate,
		AudioBitrate: fallbackAudioBitrate,
	}
}

// ForQuality resolves the encode target of a single-rendition full transcode.
// An explicit tier is capped at the source height; AUTO (or an unknown tier)
// encodes at source resolution.
func ForQuality(probe model.MediaProbe, q model.QualityTier) model.QualityVariant {
	for _, t := range Tiers {
		if t.Quality != q {
			continue
		}
		if probe.Height > 0 && t.Height > probe.Height {
			break
		}
		v := t.variant()
		v.Label = model.SingleRendition
		return v
	}
	v := sourceVariant(probe)
	v.Label = model.SingleRendition
	return v
}

// Targets lists the renditions a session encodes: its ladder, or one
// rendition sized by the requested quality. Copy modes mirror the source.
func Targets(sess *model.StreamSession) []model.QualityVariant {
	if sess.IsABR() {
		return sess.Variants
	}
	if sess.Decision.Mode == model.ModeFullTranscode {
		return []model.QualityVariant{ForQuality(sess.Probe, sess.Options.EffectiveQuality())}
	}
	v := sourceVariant(sess.Probe)
	v.Label = model.SingleRendition
	return []model.QualityVariant{v}
}

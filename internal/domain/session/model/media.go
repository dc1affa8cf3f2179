// SPDX-License-Identifier: MIT

package model

import "time"

// MediaProbe describes what a source file actually contains.
type MediaProbe struct {
	VideoCodec string
	AudioCodec string // empty when the source has no audio stream
	Width      int
	Height     int
	Framerate  float64
	Duration   time.Duration
	Bitrate    int64 // bits per second, 0 when unknown
}

// StreamingOptions are the client's playback capabilities and preferences.
type StreamingOptions struct {
	Quality          QualityTier `json:"quality,omitempty"`
	MaxWidth         *int        `json:"maxWidth,omitempty"`
	MaxHeight        *int        `json:"maxHeight,omitempty"`
	MaxBitrate       *int64      `json:"maxBitrate,omitempty"`
	SupportedCodecs  []string    `json:"supportedCodecs,omitempty"`
	AudioLanguage    string      `json:"audioLanguage,omitempty"`
	SubtitleLanguage string      `json:"subtitleLanguage,omitempty"`
}

// EffectiveQuality returns the requested tier, treating an empty value as AUTO.
func (o StreamingOptions) EffectiveQuality() QualityTier {
	if o.Quality == "" {
		return QualityAuto
	}
	return o.Quality
}

// Clone returns a deep copy.
func (o StreamingOptions) Clone() StreamingOptions {
	out := o
	if o.MaxWidth != nil {
		v := *o.MaxWidth
		out.MaxWidth = &v
	}
	if o.MaxHeight != nil {
		v := *o.MaxHeight
		out.MaxHeight = &v
	}
	if o.MaxBitrate != nil {
		v := *o.MaxBitrate
		out.MaxBitrate = &v
	}
	if o.SupportedCodecs != nil {
		out.SupportedCodecs = append([]string(nil), o.SupportedCodecs...)
	}
	return out
}

// HardwareEncodingCapability is the result of probing the ffmpeg binary.
// It is computed once and never mutated afterwards.
type HardwareEncodingCapability struct {
	Available         bool // ffmpeg binary runs at all
	HardwareAvailable bool
	Encoders          []string // detected hardware encoders, sorted
	Accelerator       string
	Accelerators      []string
	Version           string
}

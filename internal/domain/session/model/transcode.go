// SPDX-License-Identifier: MIT

package model

// TranscodeDecision is computed once per session and never changes.
type TranscodeDecision struct {
	Mode                   TranscodeMode
	VideoCodecFamily       string
	AudioCodec             string
	Container              ContainerFormat
	NeedsKeyframeAlignment bool
}

// QualityVariant is one rendition of an ABR ladder.
type QualityVariant struct {
	Label        string
	Width        int
	Height       int
	VideoBitrate int64
	AudioBitrate int64
}

// TranscodeRequest is the immutable input for one transcoder launch.
type TranscodeRequest struct {
	SessionID       string
	SourcePath      string
	SeekPosition    float64 // seconds
	SegmentDuration int     // seconds
	Framerate       float64
	Decision        TranscodeDecision
	Width           int
	Height          int
	Bitrate         int64
	AudioBitrate    int64
	VariantLabel    string // empty for single-rendition sessions
	StartNumber     *int
}

// TranscodeJob is a request bound to a concrete encoder and output directory.
type TranscodeJob struct {
	Request   TranscodeRequest
	Encoder   string
	OutputDir string
}

// TranscodeHandle identifies one running variant process.
type TranscodeHandle struct {
	ID     string
	Status TranscodeStatus
}

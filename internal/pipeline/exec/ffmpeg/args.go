// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/pipeline/hardware"
)

const (
	// PlaylistName is the media playlist every process writes into its output dir.
	PlaylistName = "stream.m3u8"

	defaultAudioBitrate int64   = 128_000
	defaultFramerate    float64 = 24
)

// SegmentPattern returns the ffmpeg segment filename template for a container.
func SegmentPattern(c model.ContainerFormat) string {
	return "segment%d" + c.SegmentExtension()
}

// BuildCommand turns a job into a full argv (binary first). It has no side
// effects: the same job always yields the same slice.
func BuildCommand(bin string, job model.TranscodeJob) []string {
	req := job.Request
	d := req.Decision

	args := []string{bin, "-y"}

	// Seek before -i so ffmpeg seeks the demuxer instead of decoding up to the offset.
	if req.SeekPosition > 0 {
		args = append(args, "-ss", strconv.FormatFloat(req.SeekPosition, 'f', 3, 64))
	}
	args = append(args, "-i", req.SourcePath)
	args = append(args, "-map_metadata", "-1", "-map_chapters", "-1")

	switch d.Mode {
	case model.ModeRemux:
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	case model.ModePartialTranscode:
		args = append(args, "-c:v", "copy", "-c:a", "aac", "-b:a", "128k")
	case model.ModeFullTranscode:
		args = append(args, videoEncodeArgs(job)...)
		args = append(args, keyframeArgs(job)...)
	}

	args = append(args, hlsArgs(job)...)
	return args
}

func videoEncodeArgs(job model.TranscodeJob) []string {
	req := job.Request
	bitrate := strconv.FormatInt(req.Bitrate, 10)
	audio := req.AudioBitrate
	if audio <= 0 {
		audio = defaultAudioBitrate
	}
	return []string{
		"-c:v", job.Encoder,
		"-vf", fmt.Sprintf("scale=-2:%d", req.Height),
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", strconv.FormatInt(req.Bitrate*2, 10),
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", audio/1000),
	}
}

// usesGOP reports whether the encoder is driven by a fixed GOP size rather
// than a forced keyframe expression.
func usesGOP(encoder string) bool {
	return hardware.IsHardwareEncoder(encoder) || encoder == "libsvtav1"
}

func keyframeArgs(job model.TranscodeJob) []string {
	seg := job.Request.SegmentDuration
	if usesGOP(job.Encoder) {
		fps := job.Request.Framerate
		if fps <= 0 {
			fps = defaultFramerate
		}
		gop := int(math.Round(fps * float64(seg)))
		if gop < 1 {
			gop = 1
		}
		g := strconv.Itoa(gop)
		return []string{"-g", g, "-keyint_min", g}
	}

	args := []string{"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", seg)}
	if job.Encoder == hardware.BaselineSoftwareEncoder {
		args = append(args, "-sc_threshold", "0")
	}
	return args
}

func hlsArgs(job model.TranscodeJob) []string {
	req := job.Request
	container := req.Decision.Container

	args := []string{
		"-f", "hls",
		"-hls_time", strconv.Itoa(req.SegmentDuration),
		"-hls_list_size", "0",
		"-hls_flags", "temp_file+independent_segments",
	}
	if req.StartNumber != nil {
		args = append(args, "-start_number", strconv.Itoa(*req.StartNumber))
	}

	segments := filepath.Join(job.OutputDir, SegmentPattern(container))
	switch container {
	case model.ContainerFMP4:
		args = append(args,
			"-hls_segment_type", "fmp4",
			"-hls_fmp4_init_filename", model.InitSegmentName,
			"-hls_segment_filename", segments,
			"-movflags", "+frag_discont",
		)
	default:
		args = append(args,
			"-hls_segment_type", "mpegts",
			"-hls_segment_filename", segments,
		)
	}
	return append(args, filepath.Join(job.OutputDir, PlaylistName))
}

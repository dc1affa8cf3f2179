// SPDX-License-Identifier: MIT

// Package ffmpeg adapts ffprobe to the session prober port.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

const (
	defaultProbeTimeout = 15 * time.Second
	maxStderr           = 4096
)

// RunFunc executes bin with args and returns stdout and stderr.
type RunFunc func(ctx context.Context, bin string, args ...string) (stdout, stderr []byte, err error)

// Prober implements ports.Prober using ffprobe.
type Prober struct {
	bin     string
	timeout time.Duration
	run     RunFunc
}

// NewProber returns a prober for the given ffprobe binary ("ffprobe" when empty).
func NewProber(bin string, timeout time.Duration) *Prober {
	if strings.TrimSpace(bin) == "" {
		bin = "ffprobe"
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{bin: bin, timeout: timeout, run: execRun}
}

// WithRunner swaps the command runner (tests).
func (p *Prober) WithRunner(run RunFunc) *Prober {
	p.run = run
	return p
}

func execRun(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 - bin comes from config; the path is passed as a single argument
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	return out, stderr.Bytes(), err
}

// Probe runs ffprobe against path. ffprobe may exit non-zero on damaged
// tails while still printing usable JSON; such output is accepted.
// A file without a video stream yields an empty VideoCodec.
func (p *Prober) Probe(ctx context.Context, path string) (model.MediaProbe, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, stderr, err := p.run(ctx, p.bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var data probeData
	jsonErr := json.Unmarshal(out, &data)
	usable := jsonErr == nil && data.Format.FormatName != "" && data.hasStream()

	switch {
	case usable && err != nil:
		logger := log.WithComponent("probe")
		logger.Warn().Err(err).
			Str(log.FieldPath, path).
			Str("stderr", truncate(stderr)).
			Msg("ffprobe non-zero exit but JSON accepted")
	case !usable && err != nil:
		return model.MediaProbe{}, fmt.Errorf("%w: ffprobe %s: %v (stderr: %s)", model.ErrProbeFailed, path, err, truncate(stderr))
	case jsonErr != nil:
		return model.MediaProbe{}, fmt.Errorf("%w: decode ffprobe output: %v", model.ErrProbeFailed, jsonErr)
	case !usable:
		return model.MediaProbe{}, fmt.Errorf("%w: no playable streams in %s", model.ErrProbeFailed, path)
	}

	return data.toProbe(), nil
}

func truncate(b []byte) string {
	if len(b) > maxStderr {
		return string(b[:maxStderr]) + "..."
	}
	return string(b)
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type probeData struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

func (d probeData) hasStream() bool {
	for _, s := range d.Streams {
		if (s.CodecType == "video" || s.CodecType == "audio") && s.CodecName != "" {
			return true
		}
	}
	return false
}

func (d probeData) toProbe() model.MediaProbe {
	var mp model.MediaProbe
	var streamDur float64
	var videoBitrate int64
	for _, s := range d.Streams {
		switch s.CodecType {
		case "video":
			// Cover art shows up as a video stream.
			if mp.VideoCodec != "" || s.Disposition.AttachedPic == 1 || s.CodecName == "" {
				continue
			}
			mp.VideoCodec = s.CodecName
			mp.Width = s.Width
			mp.Height = s.Height
			mp.Framerate = parseRate(s.AvgFrameRate)
			if mp.Framerate == 0 {
				mp.Framerate = parseRate(s.RFrameRate)
			}
			streamDur = parseFloat(s.Duration)
			videoBitrate = parseInt(s.BitRate)
		case "audio":
			if mp.AudioCodec == "" {
				mp.AudioCodec = s.CodecName
			}
		}
	}

	secs := parseFloat(d.Format.Duration)
	if secs == 0 {
		secs = streamDur
	}
	mp.Duration = time.Duration(secs * float64(time.Second))

	mp.Bitrate = parseInt(d.Format.BitRate)
	if mp.Bitrate == 0 {
		mp.Bitrate = videoBitrate
	}
	return mp
}

// parseRate parses ffprobe rationals like "24000/1001".
func parseRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	dd, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || dd <= 0 {
		return 0
	}
	return n / dd
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Package hardware detects which encoders the ffmpeg binary offers.
//
// Detection runs the binary three times:
//
//  1. -version proves the binary exists and runs. Without it every full
//     transcode must fail fast instead of launching a doomed process.
//  2. -encoders lists encoders; names ending in a known hardware suffix
//     (_nvenc, _qsv, _amf, _vaapi, _videotoolbox) are recorded.
//  3. -hwaccels lists hardware accelerators.
//
// The result is a plain value. It is computed at startup (or refreshed on
// demand through Cache) and handed to the components that need it.
package hardware

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

// HardwareSuffixes in resolution priority order.
var HardwareSuffixes = []string{"_nvenc", "_qsv", "_vaapi", "_amf", "_videotoolbox"}

var softwareEncoders = map[string]string{
	model.CodecH264: "libx264",
	model.CodecHEVC: "libx265",
	model.CodecAV1:  "libsvtav1",
}

// BaselineSoftwareEncoder is used for unknown codec families.
const BaselineSoftwareEncoder = "libx264"

// CommandRunner runs a binary and returns its combined stdout.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector probes one ffmpeg binary.
type Detector struct {
	Bin     string
	Runner  CommandRunner
	Timeout time.Duration
}

// NewDetector returns a Detector that executes the real binary.
func NewDetector(bin string) *Detector {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Detector{Bin: bin, Runner: execRunner{}, Timeout: 10 * time.Second}
}

// Detect runs the probes. It never returns an error: a missing binary is a
// capability (Available=false), not a failure of detection itself.
func (d *Detector) Detect(ctx context.Context) model.HardwareEncodingCapability {
	logger := log.WithComponent("hardware")

	out, err := d.run(ctx, "-hide_banner", "-version")
	if err != nil {
		logger.Warn().Err(err).Str("bin", d.Bin).Str(log.FieldEvent, "capability.unavailable").
			Msg("ffmpeg binary not runnable, full transcodes disabled")
		return model.HardwareEncodingCapability{}
	}

	capability := model.HardwareEncodingCapability{
		Available: true,
		Version:   parseVersion(out),
	}

	if out, err := d.run(ctx, "-hide_banner", "-encoders"); err != nil {
		logger.Warn().Err(err).Msg("encoder listing failed, assuming software only")
	} else {
		capability.Encoders = ParseHardwareEncoders(out)
	}

	if out, err := d.run(ctx, "-hide_banner", "-hwaccels"); err != nil {
		logger.Debug().Err(err).Msg("hwaccel listing failed")
	} else {
		capability.Accelerators = ParseHWAccels(out)
		if len(capability.Accelerators) > 0 {
			capability.Accelerator = capability.Accelerators[0]
		}
	}

	capability.HardwareAvailable = len(capability.Encoders) > 0

	logger.Info().
		Str(log.FieldEvent, "capability.detected").
		Str("version", capability.Version).
		Bool("hardware", capability.HardwareAvailable).
		Strs("encoders", capability.Encoders).
		Str("accelerator", capability.Accelerator).
		Msg("transcoder capabilities detected")

	return capability
}

func (d *Detector) run(ctx context.Context, args ...string) ([]byte, error) {
	runner := d.Runner
	if runner == nil {
		runner = execRunner{}
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	return runner.Output(ctx, d.Bin, args...)
}

func parseVersion(out []byte) string {
	line, _, _ := strings.Cut(string(out), "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return strings.TrimSpace(line)
}

// ParseHardwareEncoders extracts hardware encoder names from `ffmpeg -encoders`
// output, ordered by suffix priority then name.
func ParseHardwareEncoders(out []byte) []string {
	var found []string
	inList := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "---") {
			inList = true
			continue
		}
		fields := strings.Fields(line)
		if !inList || len(fields) < 2 {
			continue
		}
		name := fields[1]
		if suffixRank(name) >= 0 && !slices.Contains(found, name) {
			found = append(found, name)
		}
	}
	slices.SortFunc(found, func(a, b string) int {
		if ra, rb := suffixRank(a), suffixRank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})
	return found
}

// ParseHWAccels extracts accelerator names from `ffmpeg -hwaccels` output.
func ParseHWAccels(out []byte) []string {
	var accels []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		accels = append(accels, line)
	}
	return accels
}

func suffixRank(name string) int {
	for i, s := range HardwareSuffixes {
		if strings.HasSuffix(name, s) {
			return i
		}
	}
	return -1
}

// IsHardwareEncoder reports whether the encoder name carries a hardware suffix.
func IsHardwareEncoder(name string) bool {
	return suffixRank(name) >= 0
}

// ResolveEncoder picks the concrete encoder for a codec family: the first
// detected hardware encoder for that family, else the software fallback.
func ResolveEncoder(c model.HardwareEncodingCapability, family string) string {
	if c.HardwareAvailable {
		prefix := family + "_"
		for _, enc := range c.Encoders {
			if strings.HasPrefix(enc, prefix) {
				return enc
			}
		}
	}
	if sw, ok := softwareEncoders[family]; ok {
		return sw
	}
	return BaselineSoftwareEncoder
}

package ports

import (
	"context"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// MediaCatalog resolves a media file id to the source path on disk.
// Unknown ids return an error wrapping model.ErrMediaNotFound.
type MediaCatalog interface {
	Lookup(ctx context.Context, mediaFileID string) (string, error)
}

// Prober inspects a source file. The result is treated as opaque truth about
// the file; a file without a video stream yields an empty VideoCodec.
type Prober interface {
	Probe(ctx context.Context, path string) (model.MediaProbe, error)
}

// CapabilitySource hands out the detected encoder capability.
type CapabilitySource interface {
	Get(ctx context.Context) model.HardwareEncodingCapability
}

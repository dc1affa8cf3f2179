// SPDX-License-Identifier: MIT

package model

import (
	"maps"
	"time"
)

// SingleRendition is the handle key used by sessions without a quality ladder.
const SingleRendition = ""

// StreamSession is the mutable state of one playback. It is owned by the
// session registry; everyone else works on clones.
type StreamSession struct {
	ID           string
	MediaFileID  string
	SourcePath   string
	Probe        MediaProbe
	Decision     TranscodeDecision
	Options      StreamingOptions
	Variants     []QualityVariant
	Handles      map[string]TranscodeHandle
	SeekPosition float64
	State        SessionState
	CreatedAt    time.Time
	LastAccessed time.Time
	InFlight     int
}

// IsABR reports whether the session delivers a quality ladder.
func (s *StreamSession) IsABR() bool {
	return len(s.Variants) > 0
}

// Variant looks up a ladder entry by label.
func (s *StreamSession) Variant(label string) (QualityVariant, bool) {
	for _, v := range s.Variants {
		if v.Label == label {
			return v, true
		}
	}
	return QualityVariant{}, false
}

// Clone returns a deep copy safe to hand to readers.
func (s *StreamSession) Clone() *StreamSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Options = s.Options.Clone()
	if s.Variants != nil {
		out.Variants = append([]QualityVariant(nil), s.Variants...)
	}
	out.Handles = maps.Clone(s.Handles)
	if out.Handles == nil {
		out.Handles = map[string]TranscodeHandle{}
	}
	return &out
}

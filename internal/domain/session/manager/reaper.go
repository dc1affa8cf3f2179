// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
	"github.com/streamarr/streamarr-server-sub001/internal/metrics"
	"github.com/streamarr/streamarr-server-sub001/internal/segment"
)

// ReaperConfig tunes the background sweep.
type ReaperConfig struct {
	Interval        time.Duration
	IdleTimeout     time.Duration
	OrphanRetention time.Duration // 0 disables the orphan sweep
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Idle    int
	Failed  int
	Orphans int
}

// sessionLister is implemented by stores that can enumerate their directories.
type sessionLister interface {
	ListSessions() ([]segment.DirInfo, error)
}

// Reaper destroys idle sessions, marks dead single-rendition processes as
// failed and removes session directories nobody owns.
type Reaper struct {
	Service *Service
	Conf    ReaperConfig
}

// Run sweeps every Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	logger := log.WithComponent("reaper")
	interval := r.Conf.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Dur("idle_timeout", r.Conf.IdleTimeout).Msg("session reaper started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("session reaper stopped")
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep. Candidates are collected from a
// snapshot and every action re-checks its condition under the session lock.
func (r *Reaper) SweepOnce(ctx context.Context) SweepResult {
	logger := log.WithComponent("reaper")
	s := r.Service
	now := s.now()
	metrics.RecordReaperSweep()

	var idle, dead []string
	for _, sess := range s.registry.Snapshot() {
		if r.isIdle(sess, now) {
			idle = append(idle, sess.ID)
			continue
		}
		if r.hasDeadSingle(sess) {
			dead = append(dead, sess.ID)
		}
	}

	var res SweepResult
	for _, id := range idle {
		if ctx.Err() != nil {
			return res
		}
		if s.destroyIf(id, "idle", func(cur *model.StreamSession) bool { return r.isIdle(cur, s.now()) }) {
			res.Idle++
			logger.Info().Str(log.FieldSessionID, id).Str(log.FieldEvent, "reaper.idle_destroyed").Msg("destroyed idle session")
		}
	}

	for _, id := range dead {
		if r.markFailed(id) {
			res.Failed++
			logger.Warn().Str(log.FieldSessionID, id).Str(log.FieldEvent, "reaper.transcode_failed").Msg("transcoder exited; marked failed")
		}
	}

	if r.Conf.OrphanRetention > 0 {
		res.Orphans = r.sweepOrphans(now)
	}

	metrics.RecordReaperAction("idle_destroyed", res.Idle)
	metrics.RecordReaperAction("marked_failed", res.Failed)
	metrics.RecordReaperAction("orphan_deleted", res.Orphans)
	if res != (SweepResult{}) {
		logger.Debug().Int("idle", res.Idle).Int("failed", res.Failed).Int("orphans", res.Orphans).Msg("sweep complete")
	}
	return res
}

func (r *Reaper) isIdle(sess *model.StreamSession, now time.Time) bool {
	if r.Conf.IdleTimeout <= 0 || sess.InFlight > 0 {
		return false
	}
	return now.Sub(sess.LastAccessed) > r.Conf.IdleTimeout
}

// hasDeadSingle reports an ACTIVE single-rendition handle whose process is
// gone. Ladder variants are left alone.
func (r *Reaper) hasDeadSingle(sess *model.StreamSession) bool {
	h, ok := sess.Handles[model.SingleRendition]
	if !ok || h.Status != model.TranscodeActive {
		return false
	}
	return !r.Service.supervisor.IsRunning(sess.ID, model.SingleRendition)
}

func (r *Reaper) markFailed(id string) bool {
	s := r.Service
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, ok := s.registry.Get(id)
	if !ok || !r.hasDeadSingle(cur) {
		return false
	}
	_, err := s.registry.Update(id, func(sess *model.StreamSession) error {
		h := sess.Handles[model.SingleRendition]
		h.Status = model.TranscodeFailed
		sess.Handles[model.SingleRendition] = h
		return nil
	})
	return err == nil
}

func (r *Reaper) sweepOrphans(now time.Time) int {
	s := r.Service
	logger := log.WithComponent("reaper")
	lister, ok := s.store.(sessionLister)
	if !ok {
		return 0
	}
	dirs, err := lister.ListSessions()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list session directories")
		return 0
	}

	n := 0
	for _, d := range dirs {
		if now.Sub(d.ModTime) < r.Conf.OrphanRetention {
			continue
		}
		unlock := s.locks.Lock(d.SessionID)
		if _, live := s.registry.Get(d.SessionID); !live {
			if err := s.store.DeleteSession(d.SessionID); err != nil {
				logger.Warn().Err(err).Str(log.FieldSessionID, d.SessionID).Msg("failed to delete orphan directory")
			} else {
				n++
				logger.Info().Str(log.FieldSessionID, d.SessionID).Str(log.FieldMediaFileID, d.MediaFileID).Str(log.FieldEvent, "reaper.orphan_deleted").Msg("deleted orphan session directory")
			}
		}
		unlock()
	}
	return n
}

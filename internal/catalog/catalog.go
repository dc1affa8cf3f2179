// SPDX-License-Identifier: MIT

// Package catalog maps media file ids to source paths on disk.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// mediaNamespace scopes deterministic media ids.
var mediaNamespace = uuid.MustParse("6f0d3c5e-7a41-4c1b-9a7e-2f5d8c9b1e40")

// Item is one media file known to the server.
type Item struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	ModTime   time.Time `json:"modTime"`
	AddedAt   time.Time `json:"addedAt"`
}

// MediaID derives the stable id of a file from its root and relative path,
// so rescans never mint new ids for the same file. Paths are NFC-normalized
// first; macOS volumes report decomposed names.
func MediaID(rootID, relPath string) string {
	return uuid.NewSHA1(mediaNamespace, []byte(rootID+"\x00"+norm.NFC.String(relPath))).String()
}

// Memory is an in-process catalog.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemory creates a catalog holding items.
func NewMemory(items ...Item) *Memory {
	m := &Memory{items: make(map[string]Item, len(items))}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

// Lookup implements ports.MediaCatalog.
func (m *Memory) Lookup(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrMediaNotFound, id)
	}
	return it.Path, nil
}

// Upsert adds or replaces an item.
func (m *Memory) Upsert(_ context.Context, it Item) error {
	m.mu.Lock()
	m.items[it.ID] = it
	m.mu.Unlock()
	return nil
}

// List returns all items ordered by id.
func (m *Memory) List(_ context.Context) ([]Item, error) {
	m.mu.RLock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

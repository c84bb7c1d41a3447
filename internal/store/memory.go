package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store used by unit tests and the dev server.
// Server-assigned timestamps resolve immediately at write time.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]Document
	versions    map[string]uint64
	subs        map[string]map[int]*memSub
	nextSub     int
}

type memSub struct {
	mu       sync.Mutex
	released bool
	lastVer  uint64
	cb       SnapshotFunc
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]Document),
		versions:    make(map[string]uint64),
		subs:        make(map[string]map[int]*memSub),
	}
}

func validPath(path string) bool {
	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1, 3:
	default:
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func (m *Memory) AddDocument(ctx context.Context, path string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validPath(path) {
		return "", ErrBadPath
	}

	id := newDocID()
	resolved := make(Fields, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTime); ok {
			resolved[k] = time.Now().UTC()
			continue
		}
		resolved[k] = v
	}

	// snapshot and version are captured under the same lock as the write,
	// so deliver can drop whichever of two racing snapshots is older
	m.mu.Lock()
	m.collections[path] = append(m.collections[path], Document{ID: id, Fields: resolved})
	m.versions[path]++
	ver := m.versions[path]
	docs := m.collections[path]
	subs := make([]*memSub, 0, len(m.subs[path]))
	for _, s := range m.subs[path] {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		cp := make([]Document, len(docs))
		copy(cp, docs)
		s.deliver(ver, cp)
	}
	return id, nil
}

func (m *Memory) SubscribeCollection(ctx context.Context, path, orderBy string, cb SnapshotFunc) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validPath(path) {
		return nil, ErrBadPath
	}

	s := &memSub{cb: func(docs []Document) {
		sortByFieldDesc(docs, orderBy)
		cb(docs)
	}}

	m.mu.Lock()
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]*memSub)
	}
	id := m.nextSub
	m.nextSub++
	m.subs[path][id] = s
	ver := m.versions[path]
	docs := make([]Document, len(m.collections[path]))
	copy(docs, m.collections[path])
	m.mu.Unlock()

	// initial snapshot; a racing write that registered a newer version may
	// land first, in which case this older one is dropped
	s.deliver(ver, docs)

	return func() {
		m.mu.Lock()
		delete(m.subs[path], id)
		m.mu.Unlock()
		// block until any in-flight delivery finishes, then seal
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
	}, nil
}

// deliver runs the callback under the subscriber lock so Unsubscribe can
// guarantee no delivery happens after it returns. Snapshots older than the
// last one delivered are dropped: the subscriber always converges on the
// newest collection state regardless of delivery interleaving.
func (s *memSub) deliver(ver uint64, docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || ver < s.lastVer {
		return
	}
	s.lastVer = ver
	s.cb(docs)
}

func sortByFieldDesc(docs []Document, field string) {
	sort.SliceStable(docs, func(i, j int) bool {
		ti, tj := docs[i].Time(field), docs[j].Time(field)
		switch {
		case ti == nil && tj == nil:
			return false
		case ti == nil:
			return true // pending writes surface first, like the newest entries
		case tj == nil:
			return false
		default:
			return ti.After(*tj)
		}
	})
}

func newDocID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"iter"
	"strings"
	"sync"
	"unique"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// node is one entry of a table: a service leaf or a nested table.
type node struct {
	svc Service
	sub *table
}

type shard struct {
	mu sync.RWMutex
	m  map[string]node
}

// table maps path segments to nodes. Each shard is locked on its own, so
// lookups and registrations on different keys do not contend.
type table struct {
	shards [shardCount]shard
}

func newTable() *table {
	t := &table{}
	for i := range t.shards {
		t.shards[i].m = make(map[string]node)
	}
	return t
}

func (t *table) shard(key string) *shard {
	return &t.shards[xxhash.Sum64String(key)%shardCount]
}

func (t *table) load(key string) (node, bool) {
	s := t.shard(key)
	s.mu.RLock()
	n, ok := s.m[key]
	s.mu.RUnlock()
	return n, ok
}

func (t *table) store(key string, n node) {
	key = intern(key)
	s := t.shard(key)
	s.mu.Lock()
	s.m[key] = n
	s.mu.Unlock()
}

// subtable returns the nested table under key, creating it (and replacing
// a leaf) when there is none.
func (t *table) subtable(key string) *table {
	key = intern(key)
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.m[key]; ok && n.sub != nil {
		return n.sub
	}
	sub := newTable()
	s.m[key] = node{sub: sub}
	return sub
}

// entries returns a snapshot of the table.
func (t *table) entries() map[string]node {
	out := make(map[string]node)
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for k, n := range s.m {
			out[k] = n
		}
		s.mu.RUnlock()
	}
	return out
}

// reaches reports whether target is t or is nested somewhere below t.
func (t *table) reaches(target *table) bool {
	seen := map[*table]struct{}{}
	stack := []*table{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		for _, n := range cur.entries() {
			if n.sub != nil {
				stack = append(stack, n.sub)
			}
		}
	}
	return false
}

func intern(key string) string {
	return unique.Make(key).Value()
}

// segments yields the non-empty '/'-separated tokens of path. "." and ".."
// are ordinary tokens.
func segments(path string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for seg := range strings.SplitSeq(path, "/") {
			if seg == "" {
				continue
			}
			if !yield(seg) {
				return
			}
		}
	}
}

func splitPath(path string) []string {
	var out []string
	for seg := range segments(path) {
		out = append(out, seg)
	}
	return out
}

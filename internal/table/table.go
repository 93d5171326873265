// Package table implements the datapoint table: the hub's single owner of
// currently-published values.
package table

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

const defaultShardCount = 32

type shard struct {
	mu   sync.RWMutex
	data map[string]dpoint.Datapoint
}

// Table is a sharded, mutex-protected map from varname to the current
// datapoint published under that name. Sharding by xxhash(varname) spreads
// lock contention across concurrent producers; every cross-shard operation
// (Keys, DGDir, Clear) takes every shard's lock in a fixed ascending order
// to avoid deadlock with itself.
type Table struct {
	shards []*shard
	keys   *keySnapshot
}

// New returns a Table with the default shard count.
func New() *Table {
	return NewWithShards(defaultShardCount)
}

// NewWithShards returns a Table sharded into n buckets. An n less than 1
// is raised to 1.
func NewWithShards(n int) *Table {
	if n < 1 {
		n = 1
	}
	t := &Table{shards: make([]*shard, n), keys: newKeySnapshot()}
	for i := range t.shards {
		t.shards[i] = &shard{data: make(map[string]dpoint.Datapoint)}
	}
	return t
}

func (t *Table) shardFor(varname string) *shard {
	h := xxhash.Sum64String(varname)
	return t.shards[h%uint64(len(t.shards))]
}

// Insert stores point unconditionally, overwriting any prior value.
func (t *Table) Insert(point dpoint.Datapoint) {
	s := t.shardFor(point.Varname)
	s.mu.Lock()
	_, existed := s.data[point.Varname]
	s.data[point.Varname] = point
	s.mu.Unlock()
	if !existed {
		t.keys.invalidate()
	}
}

// Replace stores point, returning true if a prior entry under that name
// existed and was overwritten (I so the caller knows whether to republish
// the key list), false if the name is new.
func (t *Table) Replace(point dpoint.Datapoint) (overwrote bool) {
	s := t.shardFor(point.Varname)
	s.mu.Lock()
	_, overwrote = s.data[point.Varname]
	s.data[point.Varname] = point
	s.mu.Unlock()
	if !overwrote {
		t.keys.invalidate()
	}
	return overwrote
}

// Update transfers point into the table, reusing the existing slot if one
// exists. It returns true when an existing entry was replaced, false when
// a new entry was inserted (the caller uses this to decide whether a key
// publish is owed).
func (t *Table) Update(point dpoint.Datapoint) (replaced bool) {
	return t.Replace(point)
}

// GetCopy returns a deep copy of the current value for varname. This is
// the only safe way to read out of the table: callers never receive a
// reference into table-owned storage.
func (t *Table) GetCopy(varname string) (dpoint.Datapoint, bool) {
	s := t.shardFor(varname)
	s.mu.RLock()
	dp, ok := s.data[varname]
	s.mu.RUnlock()
	if !ok {
		return dpoint.Datapoint{}, false
	}
	return dp.Clone(), true
}

// Exists reports whether varname currently has a published value.
func (t *Table) Exists(varname string) bool {
	s := t.shardFor(varname)
	s.mu.RLock()
	_, ok := s.data[varname]
	s.mu.RUnlock()
	return ok
}

// Delete removes varname, returning whether it was present.
func (t *Table) Delete(varname string) bool {
	s := t.shardFor(varname)
	s.mu.Lock()
	_, ok := s.data[varname]
	delete(s.data, varname)
	s.mu.Unlock()
	if ok {
		t.keys.invalidate()
	}
	return ok
}

// Clear removes every entry from the table.
func (t *Table) Clear() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.data = make(map[string]dpoint.Datapoint)
		s.mu.Unlock()
	}
	t.keys.invalidate()
}

// Len returns the total number of published datapoints across all shards.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// Keys returns the space-joined, sorted list of currently published
// varnames (the payload of the `dserv/keys` datapoint and the `%getkeys`
// reply). The result is served from a cached snapshot; only after a name
// has been added or removed is it recomputed, taking each shard's read
// lock in turn.
func (t *Table) Keys() string {
	return t.keys.get(t.snapshotKeys)
}

func (t *Table) snapshotKeys() string {
	all := make([]string, 0, 64)
	for _, s := range t.shards {
		s.mu.RLock()
		for k := range s.data {
			all = append(all, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(all)
	return strings.Join(all, " ")
}

// DGDir returns the space-joined `{name 0 length}` triples for every
// DG-typed entry currently published, the payload of the `%dgdir` reply.
func (t *Table) DGDir() string {
	var sb strings.Builder
	first := true
	for _, s := range t.shards {
		s.mu.RLock()
		for name, dp := range s.data {
			if dp.DType != dpoint.TypeDG {
				continue
			}
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			fmt.Fprintf(&sb, "{%s 0 %d}", name, dp.Len())
		}
		s.mu.RUnlock()
	}
	return sb.String()
}

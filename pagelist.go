// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// defaultChunkSize is the maximum number of titles batched into a single
// SQL IN(...) fragment.
const defaultChunkSize = 200

// redlinkBatchSize is the chunk size used when building the redlink-scanning
// queries (§6: "100 when building redlink queries via an internal divisor").
const redlinkBatchSize = defaultChunkSize / 2

// PageList is a wiki-tagged set of PageListEntry, keyed by Title. All
// mutation goes through the exported methods, which take pl.mu for writing;
// read-only iteration (Sort, Entries) takes it for reading. A writer must
// never hold the lock across a database call: copy out from the set first,
// issue the query, then reacquire to merge results back in.
type PageList struct {
	mu      sync.RWMutex
	wiki    string
	entries map[key]*PageListEntry
}

// NewPageList creates an empty list tagged with wiki. wiki may be empty,
// which is only valid transiently (before a source populates the list, or
// immediately after Clear).
func NewPageList(wiki string) *PageList {
	return &PageList{wiki: wiki, entries: make(map[key]*PageListEntry)}
}

// NewPageListFromEntries creates a list from a slice of entries, applying
// replace semantics for duplicate titles (last write wins).
func NewPageListFromEntries(wiki string, entries []*PageListEntry) *PageList {
	pl := NewPageList(wiki)
	for _, e := range entries {
		pl.entries[e.Title.key()] = e
	}
	return pl
}

// Wiki returns the list's wiki tag, which may be empty.
func (pl *PageList) Wiki() string {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.wiki
}

// Len returns the number of entries currently in the set.
func (pl *PageList) Len() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return len(pl.entries)
}

// Entries returns a snapshot slice of the current entries. The returned
// entries must not be mutated by the caller; clone them first.
func (pl *PageList) Entries() []*PageListEntry {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	out := make([]*PageListEntry, 0, len(pl.entries))
	for _, e := range pl.entries {
		out = append(out, e)
	}
	return out
}

// Clear empties the set and resets the wiki tag, mirroring the Rust
// original's transient "wiki tag absent" state between conversions.
func (pl *PageList) Clear() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.wiki = ""
	pl.entries = make(map[key]*PageListEntry)
}

// Put inserts or replaces an entry, keyed by its title.
func (pl *PageList) Put(e *PageListEntry) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.entries[e.Title.key()] = e
}

// Get returns the entry for t, if present.
func (pl *PageList) Get(t Title) (*PageListEntry, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	e, ok := pl.entries[t.key()]
	return e, ok
}

// PageListError reports an internal invariant violation, such as merging
// two lists tagged with different wikis without a Platform to convert one
// side.
type PageListError struct {
	msg string
}

func (e *PageListError) Error() string { return e.msg }

func newPageListError(format string, args ...any) *PageListError {
	return &PageListError{msg: fmt.Sprintf(format, args...)}
}

// reconcileWikis ensures pl and other share a wiki before a set operation,
// converting other in place (via platform, if given) when they differ.
func (pl *PageList) reconcileWikis(ctx context.Context, other *PageList, platform *Platform) error {
	pl.mu.RLock()
	selfWiki := pl.wiki
	pl.mu.RUnlock()

	otherWiki := other.Wiki()

	if selfWiki == "" || otherWiki == "" {
		return newPageListError("petscan: cannot combine page lists with an untagged wiki (self=%q other=%q)", selfWiki, otherWiki)
	}
	if selfWiki == otherWiki {
		return nil
	}
	if platform == nil {
		return newPageListError("petscan: cannot combine page lists from different wikis (%q vs %q) without a platform to convert", selfWiki, otherWiki)
	}
	return other.ConvertToWiki(ctx, selfWiki, platform)
}

// Union merges other into pl. If pl is empty, pl's entries are replaced
// outright with other's (matching the Rust original, which treats an empty
// self specially so the result inherits other's wiki tag in that case).
func (pl *PageList) Union(ctx context.Context, other *PageList, platform *Platform) error {
	if err := pl.reconcileWikis(ctx, other, platform); err != nil {
		return err
	}
	otherEntries := other.Entries()

	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.entries) == 0 {
		pl.wiki = other.Wiki()
	}
	for _, e := range otherEntries {
		pl.entries[e.Title.key()] = e
	}
	return nil
}

// Intersection retains only entries that also appear (by title) in other.
func (pl *PageList) Intersection(ctx context.Context, other *PageList, platform *Platform) error {
	if err := pl.reconcileWikis(ctx, other, platform); err != nil {
		return err
	}
	present := make(map[key]struct{})
	for _, e := range other.Entries() {
		present[e.Title.key()] = struct{}{}
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()
	for k := range pl.entries {
		if _, ok := present[k]; !ok {
			delete(pl.entries, k)
		}
	}
	return nil
}

// Difference retains only entries that do not appear (by title) in other.
func (pl *PageList) Difference(ctx context.Context, other *PageList, platform *Platform) error {
	if err := pl.reconcileWikis(ctx, other, platform); err != nil {
		return err
	}
	present := make(map[key]struct{})
	for _, e := range other.Entries() {
		present[e.Title.key()] = struct{}{}
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()
	for k := range pl.entries {
		if _, ok := present[k]; ok {
			delete(pl.entries, k)
		}
	}
	return nil
}

// sqlBatch is a single (fragment, params) pair ready to be concatenated
// into a SELECT skeleton by the caller.
type sqlBatch struct {
	NamespaceID int
	Fragment    string
	Params      []any
}

// ToSQLBatches groups entries by namespace id and partitions titles within
// each namespace into chunks of at most chunkSize, emitting one batch per
// chunk. If chunkSize <= 0, defaultChunkSize is used.
func (pl *PageList) ToSQLBatches(chunkSize int) []sqlBatch {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	byNamespace := make(map[int][]string)
	pl.mu.RLock()
	for _, e := range pl.entries {
		byNamespace[e.Title.NamespaceID] = append(byNamespace[e.Title.NamespaceID], e.Title.DBKey())
	}
	pl.mu.RUnlock()

	var batches []sqlBatch
	for ns, titles := range byNamespace {
		for i := 0; i < len(titles); i += chunkSize {
			end := i + chunkSize
			if end > len(titles) {
				end = len(titles)
			}
			batches = append(batches, newNamespaceBatch(ns, titles[i:end]))
		}
	}
	return batches
}

// ToSQLBatchesNamespace restricts ToSQLBatches to a single namespace.
func (pl *PageList) ToSQLBatchesNamespace(chunkSize, namespaceID int) []sqlBatch {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	var titles []string
	pl.mu.RLock()
	for _, e := range pl.entries {
		if e.Title.NamespaceID == namespaceID {
			titles = append(titles, e.Title.DBKey())
		}
	}
	pl.mu.RUnlock()

	var batches []sqlBatch
	for i := 0; i < len(titles); i += chunkSize {
		end := i + chunkSize
		if end > len(titles) {
			end = len(titles)
		}
		batches = append(batches, newNamespaceBatch(namespaceID, titles[i:end]))
	}
	return batches
}

func newNamespaceBatch(namespaceID int, titles []string) sqlBatch {
	placeholders := make([]string, len(titles))
	params := make([]any, len(titles))
	for i, t := range titles {
		placeholders[i] = "?"
		params[i] = t
	}
	return sqlBatch{
		NamespaceID: namespaceID,
		Fragment:    fmt.Sprintf("(page_namespace=%d AND page_title IN(%s))", namespaceID, strings.Join(placeholders, ",")),
		Params:      params,
	}
}

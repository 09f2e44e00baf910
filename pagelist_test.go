// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"strconv"
	"testing"
)

func titles(wiki string, names ...string) *PageList {
	pl := NewPageList(wiki)
	for _, n := range names {
		pl.Put(NewPageListEntry(NewTitle(n, 0)))
	}
	return pl
}

func titleSet(pl *PageList) map[string]bool {
	out := make(map[string]bool)
	for _, e := range pl.Entries() {
		out[e.Title.DBKey()] = true
	}
	return out
}

func TestUnionIsCommutative(t *testing.T) {
	ctx := context.Background()
	a := titles("enwiki", "Foo", "Bar")
	b := titles("enwiki", "Bar", "Baz")

	ab := titles("enwiki", "Foo", "Bar")
	if err := ab.Union(ctx, b, nil); err != nil {
		t.Fatalf("Union: %v", err)
	}
	ba := titles("enwiki", "Bar", "Baz")
	if err := ba.Union(ctx, a, nil); err != nil {
		t.Fatalf("Union: %v", err)
	}
	if got, want := titleSet(ab), titleSet(ba); !mapsEqual(got, want) {
		t.Errorf("union not commutative: A∪B=%v, B∪A=%v", got, want)
	}
}

func TestUnionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := titles("enwiki", "Foo", "Bar")
	before := titleSet(a)
	if err := a.Union(ctx, titles("enwiki", "Foo", "Bar"), nil); err != nil {
		t.Fatalf("Union: %v", err)
	}
	if got := titleSet(a); !mapsEqual(got, before) {
		t.Errorf("union not idempotent: got %v, want %v", got, before)
	}
}

func TestIntersectionIsCommutative(t *testing.T) {
	ctx := context.Background()
	a := titles("enwiki", "Foo", "Bar")
	b := titles("enwiki", "Bar", "Baz")

	ab := titles("enwiki", "Foo", "Bar")
	if err := ab.Intersection(ctx, b, nil); err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	ba := titles("enwiki", "Bar", "Baz")
	if err := ba.Intersection(ctx, a, nil); err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	if got, want := titleSet(ab), titleSet(ba); !mapsEqual(got, want) {
		t.Errorf("intersection not commutative: A∩B=%v, B∩A=%v", got, want)
	}
}

func TestDifferenceIsSubsetAndSelfAnnihilates(t *testing.T) {
	ctx := context.Background()
	a := titles("enwiki", "Foo", "Bar")
	b := titles("enwiki", "Bar")
	if err := a.Difference(ctx, b, nil); err != nil {
		t.Fatalf("Difference: %v", err)
	}
	if got := titleSet(a); len(got) != 1 || !got["Foo"] {
		t.Errorf("A-B = %v, want {Foo}", got)
	}

	self := titles("enwiki", "Foo", "Bar")
	if err := self.Difference(ctx, titles("enwiki", "Foo", "Bar"), nil); err != nil {
		t.Fatalf("Difference: %v", err)
	}
	if self.Len() != 0 {
		t.Errorf("A-A has %d entries, want 0", self.Len())
	}
}

func TestReconcileWikisRejectsMismatchWithoutPlatform(t *testing.T) {
	a := titles("enwiki", "Foo")
	b := titles("dewiki", "Foo")
	if err := a.Union(context.Background(), b, nil); err == nil {
		t.Error("Union across wikis without a platform: want error, got nil")
	}
}

func TestToSQLBatchesRespectsChunkSize(t *testing.T) {
	pl := NewPageList("enwiki")
	for i := 0; i < 450; i++ {
		pl.Put(NewPageListEntry(NewTitle("T"+strconv.Itoa(i), 0)))
	}
	batches := pl.ToSQLBatches(200)

	total := 0
	for _, b := range batches {
		n := len(b.Params)
		if n > 200 {
			t.Errorf("batch has %d params, want <= 200", n)
		}
		total += n
	}
	if total != 450 {
		t.Errorf("batches cover %d titles total, want 450", total)
	}
}

func mapsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

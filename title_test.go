// SPDX-License-Identifier: MIT

package petscan

import "testing"

func TestNewTitleDBKey(t *testing.T) {
	tests := []struct {
		name, ns string
		nsID     int
		want     string
	}{
		{"Foo bar", "", 0, "Foo_bar"},
		{"Foo_bar", "", 0, "Foo_bar"},
		{"  Foo bar  ", "", 0, "Foo_bar"},
	}
	for _, tc := range tests {
		got := NewTitle(tc.name, tc.nsID).DBKey()
		if got != tc.want {
			t.Errorf("NewTitle(%q, %d).DBKey() = %q, want %q", tc.name, tc.nsID, got, tc.want)
		}
	}
}

func TestTitlePretty(t *testing.T) {
	got := NewTitle("Foo_bar_baz", 0).Pretty()
	if want := "Foo bar baz"; got != want {
		t.Errorf("Pretty() = %q, want %q", got, want)
	}
}

// TestFoldKeyDefaultCaser covers §8 scenario 7's non-Turkish half: the
// default caser folds plain ASCII case without any locale rule.
func TestFoldKeyDefaultCaser(t *testing.T) {
	a := NewTitle("Istanbul", 0)
	b := NewTitle("istanbul", 0)
	if a.FoldKey("enwiki") != b.FoldKey("enwiki") {
		t.Errorf("FoldKey(%q) != FoldKey(%q) under the default caser", a.Pretty(), b.Pretty())
	}
}

// TestFoldKeyTurkishCaser covers §8 scenario 7's Turkish half: the dotted
// capital İ folds to the same key as lowercase i only under the
// Turkish-aware caser, selected for tr./az. wikis.
func TestFoldKeyTurkishCaser(t *testing.T) {
	dotted := NewTitle("İstanbul", 0)
	plain := NewTitle("istanbul", 0)
	if dotted.FoldKey("trwiki") != plain.FoldKey("trwiki") {
		t.Errorf("FoldKey(%q) != FoldKey(%q) under the Turkish caser on trwiki", dotted.Pretty(), plain.Pretty())
	}
	if dotted.FoldKey("azwiki") != plain.FoldKey("azwiki") {
		t.Errorf("FoldKey(%q) != FoldKey(%q) under the Turkish caser on azwiki", dotted.Pretty(), plain.Pretty())
	}
}

func TestIsTurkicWiki(t *testing.T) {
	tests := map[string]bool{
		"trwiki": true,
		"azwiki": true,
		"enwiki": false,
		"dewiki": false,
		"crhwiki": false,
	}
	for wiki, want := range tests {
		if got := isTurkicWiki(wiki); got != want {
			t.Errorf("isTurkicWiki(%q) = %v, want %v", wiki, got, want)
		}
	}
}

// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"testing"
)

func TestEnabledSourcesPrefersCandidateOrder(t *testing.T) {
	p := NewPlatform(nil, &FormParameters{
		ManualList:     "Foo",
		ManualListWiki: "enwiki",
		Sparql:         "SELECT ?x WHERE {}",
	})
	enabled, err := p.enabledSources()
	if err != nil {
		t.Fatalf("enabledSources: %v", err)
	}
	names := namesOf(enabled)
	if len(names) != 2 || names[0] != "sparql" || names[1] != "manual" {
		t.Errorf("enabledSources() = %v, want [sparql manual] in candidate order", names)
	}
}

func TestEnabledSourcesErrorsWhenNoneCanRun(t *testing.T) {
	p := NewPlatform(nil, &FormParameters{})
	if _, err := p.enabledSources(); err == nil {
		t.Error("enabledSources: want error when no source can run, got nil")
	}
}

func TestCombinationUsesDefaultWhenUnset(t *testing.T) {
	p := NewPlatform(nil, &FormParameters{})
	c, err := p.combination([]string{"manual", "sparql"})
	if err != nil {
		t.Fatalf("combination: %v", err)
	}
	want := DefaultCombination([]string{"manual", "sparql"})
	if c.String() != want.String() {
		t.Errorf("combination() = %q, want default %q", c.String(), want.String())
	}
}

func TestCombinationUsesExplicitSourceCombination(t *testing.T) {
	p := NewPlatform(nil, &FormParameters{SourceCombination: "manual OR sparql"})
	c, err := p.combination([]string{"manual", "sparql"})
	if err != nil {
		t.Fatalf("combination: %v", err)
	}
	if c.Op != CombinationUnion {
		t.Errorf("combination() op = %v, want CombinationUnion", c.Op)
	}
}

func TestMainWikiWikipedia(t *testing.T) {
	p := NewPlatform(nil, &FormParameters{Language: "en", Project: "wikipedia"})
	wiki, err := p.mainWiki()
	if err != nil || wiki != "enwiki" {
		t.Errorf("mainWiki() = (%q, %v), want (enwiki, nil)", wiki, err)
	}
}

func TestMainWikiWikidataAndCommons(t *testing.T) {
	p := NewPlatform(nil, &FormParameters{Project: "wikidata"})
	if wiki, err := p.mainWiki(); err != nil || wiki != "wikidatawiki" {
		t.Errorf("mainWiki() = (%q, %v), want (wikidatawiki, nil)", wiki, err)
	}
	p = NewPlatform(nil, &FormParameters{Project: "commons"})
	if wiki, err := p.mainWiki(); err != nil || wiki != "commonswiki" {
		t.Errorf("mainWiki() = (%q, %v), want (commonswiki, nil)", wiki, err)
	}
}

func TestDefaultTitleParserRecognizesCanonicalNamespaces(t *testing.T) {
	tp := defaultTitleParser{}
	tests := []struct {
		raw    string
		wantNS int
	}{
		{"Category:Foo", 14},
		{"Template:Foo", 10},
		{"File:Foo.jpg", 6},
		{"Image:Foo.jpg", 6},
		{"Talk:Foo", 1},
		{"Foo", 0},
	}
	for _, tc := range tests {
		title, err := tp.ParseTitle(context.Background(), "enwiki", tc.raw)
		if err != nil {
			t.Errorf("ParseTitle(%q): %v", tc.raw, err)
			continue
		}
		if title.NamespaceID != tc.wantNS {
			t.Errorf("ParseTitle(%q).NamespaceID = %d, want %d", tc.raw, title.NamespaceID, tc.wantNS)
		}
	}
}

func TestDefaultTitleParserRejectsEmpty(t *testing.T) {
	tp := defaultTitleParser{}
	if _, err := tp.ParseTitle(context.Background(), "enwiki", "   "); err == nil {
		t.Error("ParseTitle(\"\"): want error, got nil")
	}
}

// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func testSiteMatrix() SiteMatrixBootstrap {
	return NewStaticSiteMatrixBootstrap([]SiteMatrixSite{
		{Wiki: "amwiktionary", ServerURL: "https://am.wiktionary.org", Language: "am", RTL: false},
		{Wiki: "outreachwiki", ServerURL: "https://outreach.wikimedia.org", Language: "en", RTL: false},
		{Wiki: "enwiki", ServerURL: "https://en.wikipedia.org", Language: "en", RTL: false},
		{Wiki: "arwiki", ServerURL: "https://ar.wikipedia.org", Language: "ar", RTL: true},
		{Wiki: "dewiki", ServerURL: "https://de.wikipedia.org", Language: "de", RTL: false},
		{Wiki: "hewiki", ServerURL: "https://he.wikipedia.org", Language: "he", RTL: true},
	})
}

func newTestAppState(t *testing.T) *AppState {
	t.Helper()
	cfg := &Config{User: "u", Password: "p", DBPort: defaultDBPort, DBServerGroup: defaultServerGroup}
	return NewAppState(cfg, testSiteMatrix(), nil, nil)
}

// TestGetWikiForServerURL covers §8 scenario 1.
func TestGetWikiForServerURL(t *testing.T) {
	s := newTestAppState(t)
	tests := []struct {
		url  string
		want string
	}{
		{"https://am.wiktionary.org", "amwiktionary"},
		{"https://outreach.wikimedia.org", "outreachwiki"},
	}
	for _, tc := range tests {
		got, ok := s.GetWikiForServerURL(tc.url)
		if !ok || got != tc.want {
			t.Errorf("GetWikiForServerURL(%q) = (%q, %v), want (%q, true)", tc.url, got, ok, tc.want)
		}
	}
}

func TestGetWikiForServerURLUnknown(t *testing.T) {
	s := newTestAppState(t)
	if _, ok := s.GetWikiForServerURL("https://nonexistent.example.org"); ok {
		t.Error("GetWikiForServerURL: want ok=false for an unknown server URL")
	}
}

func TestGetServerURLForWikiIsInverse(t *testing.T) {
	s := newTestAppState(t)
	url, ok := s.GetServerURLForWiki("enwiki")
	if !ok || url != "https://en.wikipedia.org" {
		t.Errorf("GetServerURLForWiki(enwiki) = (%q, %v), want (https://en.wikipedia.org, true)", url, ok)
	}
}

// TestDBHostAndSchemaForWiki covers §8 scenario 2.
func TestDBHostAndSchemaForWiki(t *testing.T) {
	s := newTestAppState(t)
	tests := []struct {
		wiki       string
		wantSchema string
	}{
		{"enwiki", "enwiki_p"},
		{"be-taraskwiki", "be_x_oldwiki_p"},
	}
	for _, tc := range tests {
		got := s.DBHostAndSchemaForWiki(tc.wiki)
		if got.Schema != tc.wantSchema {
			t.Errorf("DBHostAndSchemaForWiki(%q).Schema = %q, want %q", tc.wiki, got.Schema, tc.wantSchema)
		}
	}
}

func TestDBHostAndSchemaForWikiUsesLoopbackHostVerbatim(t *testing.T) {
	cfg := &Config{User: "u", Password: "p", Host: "127.0.0.1", DBPort: defaultDBPort}
	s := NewAppState(cfg, testSiteMatrix(), nil, nil)
	got := s.DBHostAndSchemaForWiki("enwiki")
	if got.Host != "127.0.0.1" {
		t.Errorf("DBHostAndSchemaForWiki(enwiki).Host = %q, want 127.0.0.1 passthrough", got.Host)
	}
}

func TestDBHostAndSchemaForWikiBuildsHostFromServerGroup(t *testing.T) {
	cfg := &Config{User: "u", Password: "p", DBServerGroup: ".web.db.svc.eqiad.wmflabs", DBPort: defaultDBPort}
	s := NewAppState(cfg, testSiteMatrix(), nil, nil)
	got := s.DBHostAndSchemaForWiki("enwiki")
	if want := "enwiki.web.db.svc.eqiad.wmflabs"; got.Host != want {
		t.Errorf("DBHostAndSchemaForWiki(enwiki).Host = %q, want %q", got.Host, want)
	}
}

// TestIsLanguageRTL covers §8 scenario 3.
func TestIsLanguageRTL(t *testing.T) {
	s := newTestAppState(t)
	tests := []struct {
		language string
		want     bool
	}{
		{"en", false},
		{"ar", true},
		{"de", false},
		{"he", true},
	}
	for _, tc := range tests {
		if got := s.IsLanguageRTL(tc.language); got != tc.want {
			t.Errorf("IsLanguageRTL(%q) = %v, want %v", tc.language, got, tc.want)
		}
	}
}

func TestAcquireDBSlotReleaseRoundTrip(t *testing.T) {
	s := newTestAppState(t)
	slot, err := s.AcquireDBSlot(context.Background())
	if err != nil {
		t.Fatalf("AcquireDBSlot: %v", err)
	}
	slot.Release()

	// A second acquisition must succeed too, proving Release actually freed
	// the slot rather than leaving it permanently locked.
	slot2, err := s.AcquireDBSlot(context.Background())
	if err != nil {
		t.Fatalf("AcquireDBSlot (second): %v", err)
	}
	slot2.Release()
}

// TestAppStatePoolMetrics covers §8 scenario 9.
func TestAppStatePoolMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg := &Config{User: "u", Password: "p", DBPort: defaultDBPort, DBServerGroup: defaultServerGroup}
	s := NewAppState(cfg, testSiteMatrix(), metrics, nil)

	slot, err := s.AcquireDBSlot(context.Background())
	if err != nil {
		t.Fatalf("AcquireDBSlot: %v", err)
	}
	slot.Release()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "petscan_pool_slot_wait_seconds" {
			found = true
			hist := f.GetMetric()[0].GetHistogram()
			if hist.GetSampleCount() != 1 {
				t.Errorf("petscan_pool_slot_wait_seconds sample count = %d, want 1", hist.GetSampleCount())
			}
		}
	}
	if !found {
		t.Error("registry.Gather() did not include petscan_pool_slot_wait_seconds")
	}
}

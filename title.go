// SPDX-License-Identifier: MIT

package petscan

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// defaultCaser folds case the same way for every title except on wikis whose
// key starts with "tr" or "az", where Turkish casing rules apply (dotless
// ı, dotted İ). See turkishCaser below.
var defaultCaser = cases.Fold()
var turkishCaser = cases.Lower(language.Turkish)

// Title identifies a single page on a wiki: a namespace id plus a page
// name. Two titles are equal iff their namespace ids are equal and their
// pretty names are equal after NFC normalization.
type Title struct {
	NamespaceID int
	name        string // underscore form, NFC-normalized
}

// NewTitle builds a Title from a page name in either pretty (space) or
// DB (underscore) form; both are normalized to underscore form internally.
func NewTitle(name string, namespaceID int) Title {
	return Title{
		NamespaceID: namespaceID,
		name:        normalizeDBKey(name),
	}
}

// DBKey returns the underscore-normalized form used as a SQL parameter.
func (t Title) DBKey() string {
	return t.name
}

// Pretty returns the space-separated display form.
func (t Title) Pretty() string {
	return strings.ReplaceAll(t.name, "_", " ")
}

// FoldKey returns a case-folded, NFC-normalized comparison key for the
// pretty name, using Turkish-aware folding when wiki indicates a Turkish or
// Azeri project (mirrors the teacher's site-key heuristic for casefolding).
func (t Title) FoldKey(wiki string) string {
	return foldTitle(t.Pretty(), wiki)
}

func foldTitle(pretty, wiki string) string {
	caser := defaultCaser
	if isTurkicWiki(wiki) {
		caser = turkishCaser
	}
	return caser.String(norm.NFC.String(pretty))
}

func isTurkicWiki(wiki string) bool {
	if len(wiki) < 2 {
		return false
	}
	prefix := strings.ToLower(wiki[:2])
	return prefix == "tr" || prefix == "az"
}

func normalizeDBKey(name string) string {
	name = norm.NFC.String(name)
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// key is the map key used by PageList's entry set: (namespace, underscore name).
type key struct {
	ns   int
	name string
}

func (t Title) key() key {
	return key{ns: t.NamespaceID, name: t.name}
}

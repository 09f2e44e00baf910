// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// row is a single result row, addressable by column index. NULL columns
// scan to an empty string, matching the Rust original's treatment of NULL
// as absent-metadata rather than a distinguishable value.
type row []string

// runBatches executes every batch concurrently through platform's
// connection pool against wiki, and calls onRow for each returned row. It
// returns the first error encountered by any batch (the errgroup aborts the
// others via context cancellation), matching "batch parallel mode collects
// the first error and aborts" (§7).
//
// selectSkeleton must contain exactly one "%s", which is replaced by each
// batch's namespace/title fragment.
func runBatches(ctx context.Context, platform *Platform, wiki, selectSkeleton string, batches []sqlBatch, onRow func(r row) error) error {
	if platform.serialQueries {
		for _, b := range batches {
			if err := runOneBatch(ctx, platform, wiki, selectSkeleton, b, onRow); err != nil {
				return err
			}
		}
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, b := range batches {
		b := b
		group.Go(func() error {
			return runOneBatch(groupCtx, platform, wiki, selectSkeleton, b, onRow)
		})
	}
	return group.Wait()
}

func runOneBatch(ctx context.Context, platform *Platform, wiki, selectSkeleton string, b sqlBatch, onRow func(r row) error) error {
	query := fmt.Sprintf(selectSkeleton, b.Fragment)
	rows, err := platform.queryWiki(ctx, wiki, query, b.Params)
	if err != nil {
		return newDatabaseError("batch query against %s namespace %d: %w", wiki, b.NamespaceID, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return newDatabaseError("reading columns for %s: %w", wiki, err)
	}

	for rows.Next() {
		scanTargets := make([]sql.NullString, len(cols))
		scanPtrs := make([]any, len(cols))
		for i := range scanTargets {
			scanPtrs[i] = &scanTargets[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return newDatabaseError("scanning row for %s: %w", wiki, err)
		}
		r := make(row, len(cols))
		for i, v := range scanTargets {
			r[i] = v.String
		}
		if err := onRow(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AnnotateBatchResults runs batches and, for each returned row, looks up an
// entry matching (title, namespace) in pl's set; if present, it clones the
// entry, calls f to mutate the clone, and re-inserts it. Rows matching no
// existing entry are silently dropped (§4.1 "Annotation").
func (pl *PageList) AnnotateBatchResults(ctx context.Context, platform *Platform, selectSkeleton string, batches []sqlBatch, titleColIdx, nsColIdx int, f func(r row, e *PageListEntry)) error {
	wiki := pl.Wiki()
	return runBatches(ctx, platform, wiki, selectSkeleton, batches, func(r row) error {
		nsID, err := parseInt(r[nsColIdx])
		if err != nil {
			return nil // data-shape error: silently dropped per §7
		}
		t := NewTitle(r[titleColIdx], nsID)
		existing, ok := pl.Get(t)
		if !ok {
			return nil
		}
		clone := existing.clone()
		f(r, clone)
		pl.Put(clone)
		return nil
	})
}

// ProcessBatchResults runs batches and, for each returned row, calls g;
// every row for which g returns (entry, true) is inserted into pl, in
// new-entry mode (unlike AnnotateBatchResults, no existing entry is
// required).
func (pl *PageList) ProcessBatchResults(ctx context.Context, platform *Platform, selectSkeleton string, batches []sqlBatch, g func(r row) (*PageListEntry, bool)) error {
	return runBatches(ctx, platform, pl.Wiki(), selectSkeleton, batches, func(r row) error {
		if e, ok := g(r); ok {
			pl.Put(e)
		}
		return nil
	})
}

func parseInt(s string) (int, error) {
	var n int
	var neg bool
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	if i == len(s) {
		return 0, fmt.Errorf("petscan: empty integer")
	}
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("petscan: not an integer: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// ConvertToWiki converts pl's entries to target, via Wikidata as the pivot
// when target isn't wikidatawiki itself (§4.1 "Wiki conversion"). A no-op
// if pl is already tagged target, or untagged.
func (pl *PageList) ConvertToWiki(ctx context.Context, target string, platform *Platform) error {
	current := pl.Wiki()
	if current == "" || current == target {
		return nil
	}
	if current != "wikidatawiki" {
		if err := pl.convertToWikidata(ctx, platform); err != nil {
			return err
		}
	}
	if target == "wikidatawiki" {
		return nil
	}
	return pl.convertFromWikidata(ctx, target, platform)
}

// convertToWikidata replaces pl's entries with their Wikidata items, found
// via page_props.pp_propname='wikibase_item'.
func (pl *PageList) convertToWikidata(ctx context.Context, platform *Platform) error {
	wiki := pl.Wiki()
	batches := pl.ToSQLBatches(defaultChunkSize)
	const skeleton = `SELECT pp_value FROM page_props JOIN page ON page_id=pp_page
		WHERE pp_propname='wikibase_item' AND %s`

	var found []*PageListEntry
	err := runBatches(ctx, platform, wiki, skeleton, batches, func(r row) error {
		if len(r) < 1 || r[0] == "" {
			return nil
		}
		found = append(found, NewPageListEntry(NewTitle(r[0], 0)))
		return nil
	})
	if err != nil {
		return err
	}

	pl.mu.Lock()
	pl.wiki = "wikidatawiki"
	pl.entries = make(map[key]*PageListEntry)
	for _, e := range found {
		pl.entries[e.Title.key()] = e
	}
	pl.mu.Unlock()
	return nil
}

// convertFromWikidata replaces pl's wikidatawiki entries (Q-ids) with the
// corresponding pages on target, found via wb_items_per_site. Batches are
// processed five at a time, matching the Rust original's chunking.
func (pl *PageList) convertFromWikidata(ctx context.Context, target string, platform *Platform) error {
	batches := pl.ToSQLBatchesNamespace(defaultChunkSize, 0)
	const skeleton = `SELECT ips_site_page FROM wb_items_per_site
		JOIN page ON CAST(SUBSTRING(page_title,2) AS UNSIGNED)=ips_item_id
		WHERE ips_site_id=? AND %s`

	var found []*PageListEntry
	const batchGroup = 5
	for i := 0; i < len(batches); i += batchGroup {
		end := i + batchGroup
		if end > len(batches) {
			end = len(batches)
		}
		group := batches[i:end]
		for j := range group {
			group[j].Params = append([]any{target}, group[j].Params...)
		}
		err := runBatches(ctx, platform, "wikidatawiki", skeleton, group, func(r row) error {
			if len(r) < 1 || r[0] == "" {
				return nil
			}
			t, err := platform.parseTitleForWiki(target, r[0])
			if err != nil {
				return nil // data-shape error: silently dropped per §7
			}
			found = append(found, NewPageListEntry(t))
			return nil
		})
		if err != nil {
			return err
		}
	}

	pl.mu.Lock()
	pl.wiki = target
	pl.entries = make(map[key]*PageListEntry)
	for _, e := range found {
		pl.entries[e.Title.key()] = e
	}
	pl.mu.Unlock()
	return nil
}

// LoadMissingMetadata fills in page id, byte size, and timestamp for any
// entry missing them, and, when pl is on wikidatawiki and lang is set, also
// loads Wikidata labels/descriptions in that language.
func (pl *PageList) LoadMissingMetadata(ctx context.Context, lang string, platform *Platform) error {
	var needMetadata bool
	for _, e := range pl.Entries() {
		if !e.hasCoreMetadata() {
			needMetadata = true
			break
		}
	}
	if needMetadata {
		batches := pl.ToSQLBatches(defaultChunkSize)
		const skeleton = `SELECT page_title, page_namespace, page_id, page_len,
			(SELECT rev_timestamp FROM revision WHERE rev_id=page_latest LIMIT 1)
			FROM page WHERE %s`
		err := pl.AnnotateBatchResults(ctx, platform, skeleton, batches, 0, 1, func(r row, e *PageListEntry) {
			if id, err := parseInt(r[2]); err == nil {
				e.PageID = uint32(id)
			}
			if n, err := parseInt(r[3]); err == nil {
				e.PageBytes = uint32(n)
			}
			e.PageTimestamp = r[4]
		})
		if err != nil {
			return err
		}
	}

	if pl.Wiki() != "wikidatawiki" || lang == "" {
		return nil
	}
	return pl.loadWikidataLabels(ctx, lang, platform)
}

// wikidataTermTable names the term-store table/column set for one entity
// type, which differs between items (namespace 0) and properties (namespace
// 120) in the modern wbt_* schema.
type wikidataTermTable struct {
	table       string
	entityIDCol string
	termInLang  string
}

var wikidataTermTablesByNamespace = map[int]wikidataTermTable{
	0:   {table: "wbt_item_terms", entityIDCol: "wbit_item_id", termInLang: "wbit_term_in_lang_id"},
	120: {table: "wbt_property_terms", entityIDCol: "wbpt_property_id", termInLang: "wbpt_term_in_lang_id"},
}

// loadWikidataLabels loads labels and descriptions for items (namespace 0)
// and properties (namespace 120) from the modern wbt_* term-store schema,
// joining through the table/column set proper to each entity type (§4.1
// "Missing-metadata loading").
func (pl *PageList) loadWikidataLabels(ctx context.Context, lang string, platform *Platform) error {
	for _, ns := range []int{0, 120} {
		tt := wikidataTermTablesByNamespace[ns]
		batches := pl.ToSQLBatchesNamespace(defaultChunkSize, ns)
		if len(batches) == 0 {
			continue
		}
		skeleton := fmt.Sprintf(`SELECT page_title, page_namespace, wbx_text, wby_name
			FROM page
			JOIN %s ON %s=CAST(SUBSTRING(page_title,2) AS UNSIGNED)
			JOIN wbt_term_in_lang ON wbtl_id=%s
			JOIN wbt_type wby ON wby_id=wbtl_type_id
			JOIN wbt_text_in_lang ON wbxl_id=wbtl_text_in_lang_id
			JOIN wbt_text wbx ON wbx_id=wbxl_text_id
			WHERE wbxl_language=? AND %%s`, tt.table, tt.entityIDCol, tt.termInLang)
		for i := range batches {
			batches[i].Params = append([]any{lang}, batches[i].Params...)
		}
		err := pl.AnnotateBatchResults(ctx, platform, skeleton, batches, 0, 1, func(r row, e *PageListEntry) {
			switch r[3] {
			case "label":
				e.WikidataLabel = r[2]
			case "description":
				e.WikidataDescription = r[2]
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RegexpFilter retains entries whose label (on wikidatawiki) or pretty
// title (elsewhere) matches ^pattern$. A pattern that fails to compile is
// a documented open question (§9): no filtering is applied, but the
// compile error is still returned to the immediate caller so it can be
// logged.
func (pl *PageList) RegexpFilter(pattern string) error {
	if pattern == "" {
		return nil
	}
	re, err := compileAnchoredRegexp(pattern)
	if err != nil {
		return err
	}

	wiki := pl.Wiki()
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for k, e := range pl.entries {
		subject := e.Title.Pretty()
		if wiki == "wikidatawiki" && e.WikidataLabel != "" {
			subject = e.WikidataLabel
		}
		if !re.MatchString(subject) {
			delete(pl.entries, k)
		}
	}
	return nil
}

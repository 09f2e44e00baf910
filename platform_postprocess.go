// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"strings"
)

// postProcess runs the fixed-order pipeline of §4.4 step 4 over result.
func (p *Platform) postProcess(ctx context.Context, result *PageList, usedCategories bool) error {
	if err := p.filterWikidata(ctx, result); err != nil {
		return err
	}
	if err := p.processSitelinks(ctx, result); err != nil {
		return err
	}
	if err := p.processLabels(ctx, result); err != nil {
		return err
	}
	if err := p.convertToCommonWiki(ctx, result); err != nil {
		return err
	}
	if !usedCategories {
		if err := p.runDatabaseFilter(ctx, result); err != nil {
			return err
		}
	}
	if err := p.processByWikidataItem(ctx, result); err != nil {
		return err
	}
	if err := p.processFiles(ctx, result); err != nil {
		return err
	}
	if err := p.processPages(ctx, result); err != nil {
		return err
	}
	if err := p.processSubpages(ctx, result); err != nil {
		return err
	}
	if err := result.LoadMissingMetadata(ctx, p.params.WikidataLabelLanguage, p); err != nil {
		return err
	}
	if err := result.RegexpFilter(p.params.RegexpFilter); err != nil {
		p.logger.Printf("petscan: regexp filter %q failed to compile, no filtering applied: %v", p.params.RegexpFilter, err)
	}
	if err := p.processRedlinks(ctx, result); err != nil {
		return err
	}
	if err := p.processCreator(ctx, result); err != nil {
		return err
	}
	return nil
}

// filterWikidata implements §4.4.1 by counting each item's outgoing
// pagelinks on wikidatawiki: wpiu "any" and "all" keep items with at least
// one, "none" keeps items with none, anything else keeps every entry. The
// requested property/item list and the wpiu_no_statements/no_sitelinks flags
// only switch the stage on; they are not matched against the items.
func (p *Platform) filterWikidata(ctx context.Context, result *PageList) error {
	params := p.params
	if len(params.WikidataPropItemUse) == 0 && !params.WPIUNoStatements && !params.WPIUNoSitelinks {
		return nil
	}
	if err := result.ConvertToWiki(ctx, "wikidatawiki", p); err != nil {
		return err
	}

	batches := result.ToSQLBatchesNamespace(defaultChunkSize, 0)
	const statementsSkeleton = `SELECT page_title, page_namespace, COUNT(pl_from) AS n
		FROM page LEFT JOIN pagelinks ON pl_from=page_id
		WHERE %s GROUP BY page_id`

	counts := make(map[key]int)
	err := runBatches(ctx, p, "wikidatawiki", statementsSkeleton, batches, func(r row) error {
		ns, err := parseInt(r[1])
		if err != nil {
			return nil
		}
		n, err := parseInt(r[2])
		if err != nil {
			n = 0
		}
		counts[NewTitle(r[0], ns).key()] = n
		return nil
	})
	if err != nil {
		return err
	}

	wpiu := params.WPIU
	for _, e := range result.Entries() {
		n, hasCount := counts[e.Title.key()]
		used := hasCount && n > 0
		var keep bool
		switch wpiu {
		case "any":
			keep = used
		case "none":
			keep = !used
		case "all":
			keep = used
		default:
			keep = true
		}
		if !keep {
			result.mu.Lock()
			delete(result.entries, e.Title.key())
			result.mu.Unlock()
		}
	}
	return nil
}

// processSitelinks implements §4.4.2: filter by sitelink count via
// wb_items_per_site, restoring the prior wiki tag afterward. Only
// min_sitelink_count and max_sitelink_count remove entries; sitelinks_yes,
// sitelinks_any and sitelinks_no switch the stage on but are not matched
// against individual sites.
func (p *Platform) processSitelinks(ctx context.Context, result *PageList) error {
	params := p.params
	if len(params.SitelinksYes) == 0 && len(params.SitelinksAny) == 0 && len(params.SitelinksNo) == 0 &&
		params.MinSitelinkCount == 0 && params.MaxSitelinkCount == 0 {
		return nil
	}
	originalWiki := result.Wiki()
	if err := result.ConvertToWiki(ctx, "wikidatawiki", p); err != nil {
		return err
	}

	batches := result.ToSQLBatchesNamespace(defaultChunkSize, 0)
	const skeleton = `SELECT page_title, page_namespace, COUNT(ips_site_id) AS n
		FROM page LEFT JOIN wb_items_per_site
			ON ips_item_id=CAST(SUBSTRING(page_title,2) AS UNSIGNED)
		WHERE %s GROUP BY page_id`

	counts := make(map[key]int)
	err := runBatches(ctx, p, "wikidatawiki", skeleton, batches, func(r row) error {
		ns, err := parseInt(r[1])
		if err != nil {
			return nil
		}
		n, _ := parseInt(r[2])
		counts[NewTitle(r[0], ns).key()] = n
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range result.Entries() {
		n := counts[e.Title.key()]
		if params.MinSitelinkCount > 0 && n < params.MinSitelinkCount {
			result.mu.Lock()
			delete(result.entries, e.Title.key())
			result.mu.Unlock()
			continue
		}
		if params.MaxSitelinkCount > 0 && n > params.MaxSitelinkCount {
			result.mu.Lock()
			delete(result.entries, e.Title.key())
			result.mu.Unlock()
		}
	}

	if originalWiki != "" && originalWiki != "wikidatawiki" {
		return result.ConvertToWiki(ctx, originalWiki, p)
	}
	return nil
}

// processLabels implements §4.4.3 against wb_terms (legacy schema): it
// keeps the entries that have a label (term_type 'label', any language)
// whose text equals one of labels_yes or labels_any, and drops the rest.
// labels_no and langs_labels are not applied, and aliases and descriptions
// are not searched.
func (p *Platform) processLabels(ctx context.Context, result *PageList) error {
	params := p.params
	if len(params.LabelsYes) == 0 && len(params.LabelsAny) == 0 && len(params.LabelsNo) == 0 {
		return nil
	}
	if err := result.ConvertToWiki(ctx, "wikidatawiki", p); err != nil {
		return err
	}

	wanted := append(append([]string{}, params.LabelsYes...), params.LabelsAny...)
	if len(wanted) == 0 {
		return nil
	}
	batches := result.ToSQLBatchesNamespace(defaultChunkSize, 0)
	matched := make(map[key]bool)
	placeholders := questionMarks(len(wanted))
	fullSkeleton := "SELECT page_title, page_namespace FROM page JOIN wb_terms ON term_entity_id=CAST(SUBSTRING(page_title,2) AS UNSIGNED) WHERE term_type='label' AND term_text IN (" + placeholders + ") AND %s"
	for i := range batches {
		args := make([]any, 0, len(wanted)+len(batches[i].Params))
		for _, w := range wanted {
			args = append(args, w)
		}
		batches[i].Params = append(args, batches[i].Params...)
	}
	err := runBatches(ctx, p, "wikidatawiki", fullSkeleton, batches, func(r row) error {
		ns, err := parseInt(r[1])
		if err != nil {
			return nil
		}
		matched[NewTitle(r[0], ns).key()] = true
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range result.Entries() {
		if !matched[e.Title.key()] {
			result.mu.Lock()
			delete(result.entries, e.Title.key())
			result.mu.Unlock()
		}
	}
	return nil
}

func questionMarks(n int) string {
	if n == 0 {
		return ""
	}
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ",")
}

// convertToCommonWiki implements §4.4.4.
func (p *Platform) convertToCommonWiki(ctx context.Context, result *PageList) error {
	switch p.params.CommonWiki {
	case "", "auto":
		return nil
	case "cats":
		return result.ConvertToWiki(ctx, p.params.CategoriesWiki, p)
	case "pagepile", "manual":
		if wiki := p.sourceWikis[p.params.CommonWiki]; wiki != "" {
			return result.ConvertToWiki(ctx, wiki, p)
		}
		return nil
	case "wikidata":
		return result.ConvertToWiki(ctx, "wikidatawiki", p)
	case "other":
		if p.params.CommonWikiOther == "" {
			return newParameterError("petscan: common_wiki=other requires common_wiki_other")
		}
		return result.ConvertToWiki(ctx, p.params.CommonWikiOther, p)
	default:
		return newParameterError("petscan: unknown common_wiki %q", p.params.CommonWiki)
	}
}

// runDatabaseFilter implements §4.4.5: when categories wasn't used as a
// source, apply the database-filter source over the already-converted
// list if one was configured among p.sources.
func (p *Platform) runDatabaseFilter(ctx context.Context, result *PageList) error {
	for _, s := range p.sources {
		db, ok := s.(*SourceDatabase)
		if !ok || !db.CanRun(p) {
			continue
		}
		filtered, err := db.Run(ctx, p)
		if err != nil {
			return err
		}
		return result.Intersection(ctx, filtered, p)
	}
	return nil
}

// processByWikidataItem implements §4.4.6.
func (p *Platform) processByWikidataItem(ctx context.Context, result *PageList) error {
	mode := p.params.WikidataItem
	batches := result.ToSQLBatches(defaultChunkSize)
	const skeleton = `SELECT page_title, page_namespace, ips_item_id
		FROM page LEFT JOIN wb_items_per_site
			ON ips_site_page=page_title AND ips_site_id=?
		WHERE %s`
	wiki := result.Wiki()
	for i := range batches {
		batches[i].Params = append([]any{wiki}, batches[i].Params...)
	}

	err := result.AnnotateBatchResults(ctx, p, skeleton, batches, 0, 1, func(r row, e *PageListEntry) {
		if r[2] != "" {
			e.WikidataItem = "Q" + r[2]
		}
	})
	if err != nil {
		return err
	}
	if mode == "" || mode == "any" {
		return nil
	}
	for _, e := range result.Entries() {
		hasItem := e.WikidataItem != ""
		keep := (mode == "with" && hasItem) || (mode == "without" && !hasItem)
		if !keep {
			result.mu.Lock()
			delete(result.entries, e.Title.key())
			result.mu.Unlock()
		}
	}
	return nil
}

// processFiles implements §4.4.7: annotate file-namespace entries with
// global usage and image metadata.
func (p *Platform) processFiles(ctx context.Context, result *PageList) error {
	batches := result.ToSQLBatchesNamespace(defaultChunkSize, 6)
	if len(batches) == 0 {
		return nil
	}

	const usageSkeleton = `SELECT page_title, page_namespace,
		GROUP_CONCAT(gil_wiki, ':', gil_page_namespace_id, ':', gil_page_namespace, ':', gil_page_title SEPARATOR '|') AS usage
		FROM page LEFT JOIN globalimagelinks ON gil_to=page_title
		WHERE %s GROUP BY page_id`
	err := result.AnnotateBatchResults(ctx, p, usageSkeleton, batches, 0, 1, func(r row, e *PageListEntry) {
		if r[2] == "" {
			return
		}
		fi := e.FileInfo
		if fi == nil {
			fi = &FileInfo{}
		}
		for _, tok := range splitNonEmpty(r[2], "|") {
			if fu, err := ParseFileUsage(tok); err == nil {
				fi.FileUsage = append(fi.FileUsage, fu)
			}
		}
		e.FileInfo = fi
	})
	if err != nil {
		return err
	}

	const metaSkeleton = `SELECT page_title, page_namespace, img_size, img_width, img_height,
		img_media_type, img_major_mime, img_minor_mime, img_user_text, img_timestamp, img_sha1
		FROM page JOIN image_compat ON img_name=page_title
		WHERE %s`
	return result.AnnotateBatchResults(ctx, p, metaSkeleton, batches, 0, 1, func(r row, e *PageListEntry) {
		fi := e.FileInfo
		if fi == nil {
			fi = &FileInfo{}
		}
		size, _ := parseInt(r[2])
		width, _ := parseInt(r[3])
		height, _ := parseInt(r[4])
		fi.Size = int64(size)
		fi.Width = width
		fi.Height = height
		fi.MediaType = r[5]
		fi.MimeMajor = r[6]
		fi.MimeMinor = r[7]
		fi.UploaderText = r[8]
		fi.UploadedAt = r[9]
		fi.SHA1 = r[10]
		e.FileInfo = fi
	})
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// processPages implements §4.4.8: per-entry page-image, coordinates,
// defaultsort, disambiguation, incoming link count. Columns are requested
// in a fixed order and parsed positionally, matching the original's
// sequential column layout.
func (p *Platform) processPages(ctx context.Context, result *PageList) error {
	batches := result.ToSQLBatches(defaultChunkSize)
	const skeleton = `SELECT page_title, page_namespace,
		(SELECT pp_value FROM page_props WHERE pp_page=page_id AND pp_propname='page_image_free') AS image,
		(SELECT CONCAT(gt_lat, ',', gt_lon) FROM geo_tags WHERE gt_page_id=page_id AND gt_globe='earth' LIMIT 1) AS coord,
		(SELECT pp_value FROM page_props WHERE pp_page=page_id AND pp_propname='defaultsort') AS defaultsort,
		(SELECT 1 FROM page_props WHERE pp_page=page_id AND pp_propname='disambiguation' LIMIT 1) AS disambig,
		(SELECT COUNT(*) FROM pagelinks WHERE pl_target_id=page_id) AS incoming
		FROM page WHERE %s`

	return result.AnnotateBatchResults(ctx, p, skeleton, batches, 0, 1, func(r row, e *PageListEntry) {
		if r[2] != "" {
			e.PageImage = r[2]
		}
		if r[3] != "" {
			if coord, err := ParsePageCoordinates(r[3]); err == nil {
				e.Coordinates = &coord
			}
		}
		if r[4] != "" {
			e.DefaultSort = r[4]
		}
		if r[5] == "1" {
			e.Disambiguation = DisambiguationYes
		} else {
			e.Disambiguation = DisambiguationNo
		}
		if n, err := parseInt(r[6]); err == nil {
			e.IncomingLinks = uint32(n)
		}
	})
}

// processSubpages implements §4.4.9: add subpages, or filter by slash
// presence. Deliberately does not re-run earlier post-processing stages on
// the newly added subpages (§9 open question, preserved as-is).
func (p *Platform) processSubpages(ctx context.Context, result *PageList) error {
	switch p.params.Subpages {
	case "yes":
		return p.addSubpages(ctx, result)
	case "only":
		for _, e := range result.Entries() {
			if !strings.Contains(e.Title.DBKey(), "/") {
				result.mu.Lock()
				delete(result.entries, e.Title.key())
				result.mu.Unlock()
			}
		}
		return nil
	default:
		return nil
	}
}

func (p *Platform) addSubpages(ctx context.Context, result *PageList) error {
	batches := result.ToSQLBatches(defaultChunkSize)
	const skeleton = `SELECT sub.page_title, sub.page_namespace
		FROM page parent JOIN page sub
			ON sub.page_namespace=parent.page_namespace AND sub.page_title LIKE CONCAT(parent.page_title, '/%%')
		WHERE %s`
	return result.ProcessBatchResults(ctx, p, skeleton, batches, func(r row) (*PageListEntry, bool) {
		ns, err := parseInt(r[1])
		if err != nil {
			return nil, false
		}
		return NewPageListEntry(NewTitle(r[0], ns)), true
	})
}

// processRedlinks implements §4.4.12: replace the entry set with redlink
// targets (link targets whose page row is absent), aggregated per title,
// dropping any below min_redlink_count. Batches of redlinkBatchSize, per §6.
func (p *Platform) processRedlinks(ctx context.Context, result *PageList) error {
	if !p.params.Redlinks {
		return nil
	}
	batches := result.ToSQLBatches(redlinkBatchSize)
	const skeleton = `SELECT pl_target_id, pl_from_namespace, COUNT(*) AS n
		FROM pagelinks
		LEFT JOIN page ON page_id=pl_target_id
		WHERE page_id IS NULL AND %s
		GROUP BY pl_target_id`

	counts := make(map[key]int)
	titles := make(map[key]Title)
	err := runBatches(ctx, p, result.Wiki(), skeleton, batches, func(r row) error {
		ns, err := parseInt(r[1])
		if err != nil {
			return nil
		}
		n, _ := parseInt(r[2])
		t := NewTitle(r[0], ns)
		counts[t.key()] += n
		titles[t.key()] = t
		return nil
	})
	if err != nil {
		return err
	}

	wiki := result.Wiki()
	result.Clear()
	result.mu.Lock()
	result.wiki = wiki
	for k, n := range counts {
		if n < p.params.MinRedlinkCount {
			continue
		}
		e := NewPageListEntry(titles[k])
		e.RedlinkCount = uint32(n)
		result.entries[k] = e
	}
	result.mu.Unlock()
	return nil
}

// processCreator implements §4.4.13: when redlinks or wikidata_item=without
// was requested, prefetch Wikidata labels/aliases matching entry titles, for
// the renderer to use (out of scope) when proposing new items. This module
// exposes the prefetched set via result's existing WikidataLabel field on a
// best-effort basis; it does not render anything.
func (p *Platform) processCreator(ctx context.Context, result *PageList) error {
	if !p.params.Redlinks && p.params.WikidataItem != "without" {
		return nil
	}
	batches := result.ToSQLBatchesNamespace(defaultChunkSize, 0)
	if len(batches) == 0 {
		return nil
	}
	const skeleton = `SELECT page_title, page_namespace, term_text
		FROM page JOIN wb_terms ON term_text=REPLACE(page_title, '_', ' ') AND term_type IN ('label','alias')
		WHERE %s`
	return result.AnnotateBatchResults(ctx, p, skeleton, batches, 0, 1, func(r row, e *PageListEntry) {
		if e.WikidataLabel == "" {
			e.WikidataLabel = r[2]
		}
	})
}

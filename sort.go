// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lanrat/extsort"
)

// PageListSort names one of the supported sort keys for a PageList.
type PageListSort int

const (
	SortDefault PageListSort = iota
	SortTitle
	SortNsTitle
	SortSize
	SortDate
	SortIncomingLinks
	SortRedlinksCount
	SortFileSize
	SortUploadDate
	SortRandom
)

// NewPageListSortFromParams maps a form-parameter string to a sort key,
// falling back to def for any string it doesn't recognize. This function is
// total: every input string produces a value.
func NewPageListSortFromParams(s string, def PageListSort) PageListSort {
	switch s {
	case "title":
		return SortTitle
	case "ns_title":
		return SortNsTitle
	case "size":
		return SortSize
	case "date":
		return SortDate
	case "incoming_links":
		return SortIncomingLinks
	case "redlinks_count":
		return SortRedlinksCount
	case "filesize":
		return SortFileSize
	case "uploaddate":
		return SortUploadDate
	case "random":
		return SortRandom
	case "":
		return def
	default:
		return def
	}
}

// largeSortThreshold is the entry count above which Sort spills to an
// external merge sort instead of sorting in memory. It is a package-level
// variable rather than a constant so code in this package can change it;
// Config.LargeSortThreshold is decoded from the config file but not applied
// here.
var largeSortThreshold = 200_000

// lessEntries reports whether a orders before b under the given sort key and wiki
// (wiki only matters for SortTitle's label-vs-pretty-title choice).
func lessEntries(sortKey PageListSort, wiki string, a, b *PageListEntry) bool {
	switch sortKey {
	case SortTitle:
		return titleSortKey(wiki, a) < titleSortKey(wiki, b)
	case SortNsTitle:
		if a.Title.NamespaceID != b.Title.NamespaceID {
			return a.Title.NamespaceID < b.Title.NamespaceID
		}
		return a.Title.DBKey() < b.Title.DBKey()
	case SortSize:
		return optionalLess(a.PageBytes, b.PageBytes, a.PageBytes != 0, b.PageBytes != 0)
	case SortDate:
		return optionalLessStr(a.PageTimestamp, b.PageTimestamp)
	case SortIncomingLinks:
		return optionalLess(a.IncomingLinks, b.IncomingLinks, true, true)
	case SortRedlinksCount:
		return optionalLess(a.RedlinkCount, b.RedlinkCount, true, true)
	case SortFileSize:
		return optionalLess(fileSize(a), fileSize(b), a.FileInfo != nil, b.FileInfo != nil)
	case SortUploadDate:
		return optionalLessStr(uploadDate(a), uploadDate(b))
	case SortRandom:
		return rand.Intn(2) == 0
	default: // SortDefault
		return a.PageID < b.PageID
	}
}

func titleSortKey(wiki string, e *PageListEntry) string {
	if wiki == "wikidatawiki" && e.WikidataLabel != "" {
		return foldTitle(e.WikidataLabel, wiki)
	}
	return foldTitle(e.Title.Pretty(), wiki)
}

func fileSize(e *PageListEntry) int64 {
	if e.FileInfo == nil {
		return 0
	}
	return e.FileInfo.Size
}

func uploadDate(e *PageListEntry) string {
	if e.FileInfo == nil {
		return ""
	}
	return e.FileInfo.UploadedAt
}

// optionalLess orders present values before absent ones, then compares
// present values numerically.
func optionalLess[T int64 | uint32](a, b T, aPresent, bPresent bool) bool {
	if aPresent != bPresent {
		return aPresent
	}
	return a < b
}

func optionalLessStr(a, b string) bool {
	if (a == "") != (b == "") {
		return a != ""
	}
	return a < b
}

// Sort returns a sorted slice of entries. For entry counts at or below
// largeSortThreshold it sorts in memory with sort.SliceStable; above that it
// spills through an external merge sort (github.com/lanrat/extsort) so a
// single huge category doesn't exhaust process memory. SortRandom is always
// sorted in memory, since shuffling a merged external run is meaningless.
func (pl *PageList) Sort(ctx context.Context, sortKey PageListSort, descending bool) ([]*PageListEntry, error) {
	pl.mu.RLock()
	entries := make([]*PageListEntry, 0, len(pl.entries))
	for _, e := range pl.entries {
		entries = append(entries, e)
	}
	wiki := pl.wiki
	pl.mu.RUnlock()

	if sortKey != SortRandom && len(entries) > largeSortThreshold {
		sorted, err := externalSort(ctx, sortKey, wiki, entries)
		if err != nil {
			return nil, err
		}
		entries = sorted
	} else {
		sort.SliceStable(entries, func(i, j int) bool {
			return lessEntries(sortKey, wiki, entries[i], entries[j])
		})
	}

	if descending {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

// externalSort spills entries to disk and merges them back in order via
// extsort, the same library and channel-based pattern the teacher uses in
// buildTitles. Each entry is encoded as "sortkey\tindex" so the merge
// comparator only ever compares strings; the index recovers the original
// *PageListEntry after the sorted keys come back.
func externalSort(ctx context.Context, sortKey PageListSort, wiki string, entries []*PageListEntry) ([]*PageListEntry, error) {
	byIndex := make(map[int]*PageListEntry, len(entries))
	linesChan := make(chan string, 4096)
	config := extsort.DefaultConfig()
	config.NumWorkers = runtime.NumCPU()

	sorter, outChan, errChan := extsort.Strings(linesChan, config)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(linesChan)
		for i, e := range entries {
			byIndex[i] = e
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case linesChan <- fmt.Sprintf("%s\t%d", externalSortKey(sortKey, wiki, e), i):
			}
		}
		return nil
	})

	var result []*PageListEntry
	group.Go(func() error {
		sorter.Sort(groupCtx)
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case line, more := <-outChan:
				if !more {
					return nil
				}
				idx, err := parseExternalSortLine(line)
				if err != nil {
					return err
				}
				result = append(result, byIndex[idx])
			}
		}
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := <-errChan; err != nil {
		return nil, err
	}
	return result, nil
}

func externalSortKey(sortKey PageListSort, wiki string, e *PageListEntry) string {
	switch sortKey {
	case SortTitle:
		return titleSortKey(wiki, e)
	case SortNsTitle:
		return fmt.Sprintf("%020d\x00%s", e.Title.NamespaceID+1<<30, e.Title.DBKey())
	case SortSize:
		if e.PageBytes == 0 {
			return "1"
		}
		return fmt.Sprintf("0%020d", e.PageBytes)
	case SortDate:
		if e.PageTimestamp == "" {
			return "1"
		}
		return "0" + e.PageTimestamp
	case SortIncomingLinks:
		return fmt.Sprintf("%020d", e.IncomingLinks)
	case SortRedlinksCount:
		return fmt.Sprintf("%020d", e.RedlinkCount)
	case SortFileSize:
		if e.FileInfo == nil {
			return "1"
		}
		return fmt.Sprintf("0%020d", fileSize(e))
	case SortUploadDate:
		if uploadDate(e) == "" {
			return "1"
		}
		return "0" + uploadDate(e)
	default:
		return fmt.Sprintf("%020d", e.PageID)
	}
}

func parseExternalSortLine(line string) (int, error) {
	idx := strings.LastIndexByte(line, '\t')
	if idx < 0 {
		return 0, fmt.Errorf("petscan: malformed external sort line %q", line)
	}
	return strconv.Atoi(line[idx+1:])
}

// SPDX-License-Identifier: MIT

package petscan

import (
	"fmt"
	"strconv"
	"strings"
)

// Disambiguation is a tri-state flag: a page can be known to be a
// disambiguation page, known not to be one, or simply not yet checked.
type Disambiguation int

const (
	DisambiguationUnknown Disambiguation = iota
	DisambiguationYes
	DisambiguationNo
)

// PageCoordinates is a WGS84 latitude/longitude pair.
type PageCoordinates struct {
	Lat float64
	Lon float64
}

// ParsePageCoordinates parses the "lat,lon" form used by geo_tags exports.
func ParsePageCoordinates(s string) (PageCoordinates, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return PageCoordinates{}, fmt.Errorf("petscan: malformed coordinates %q", s)
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return PageCoordinates{}, fmt.Errorf("petscan: malformed latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return PageCoordinates{}, fmt.Errorf("petscan: malformed longitude in %q: %w", s, err)
	}
	return PageCoordinates{Lat: lat, Lon: lon}, nil
}

// FileUsage records one place a file is used, as reported by
// globalimagelinks: which wiki, which namespace, and which page.
type FileUsage struct {
	Wiki   string
	NsID   int
	NsName string
	Title  Title
}

// ParseFileUsage parses a "wiki:ns_id:ns_name:Page:Title" token. The page
// title itself may contain colons, so only the first three fields are
// split off; everything after the third colon is the title.
func ParseFileUsage(s string) (FileUsage, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 4 {
		return FileUsage{}, fmt.Errorf("petscan: malformed file usage token %q", s)
	}
	nsID, err := strconv.Atoi(parts[1])
	if err != nil {
		return FileUsage{}, fmt.Errorf("petscan: malformed namespace id in %q: %w", s, err)
	}
	return FileUsage{
		Wiki:   parts[0],
		NsID:   nsID,
		NsName: parts[2],
		Title:  NewTitle(parts[3], nsID),
	}, nil
}

// FileInfo is the metadata MediaWiki keeps about an uploaded file, plus the
// list of pages across the wiki family that embed it.
type FileInfo struct {
	Size          int64
	Width         int
	Height        int
	MediaType     string
	MimeMajor     string
	MimeMinor     string
	UploaderText  string
	UploadedAt    string
	SHA1          string
	FileUsage     []FileUsage
}

// PageListEntry is one page inside a PageList, identified by its Title.
// Every other field is optional; absence is the zero value for scalars
// (page id 0 is never a valid MediaWiki page id) and nil for pointer
// sub-records.
type PageListEntry struct {
	Title Title

	PageID         uint32
	PageBytes      uint32
	PageTimestamp  string // "YYYY-MM-DDTHH:MM:SS"
	IncomingLinks  uint32
	LinkCount      uint32
	RedlinkCount   uint32

	PageImage          string
	WikidataItem       string
	WikidataLabel      string
	WikidataDescription string
	DefaultSort        string
	Coordinates        *PageCoordinates
	FileInfo           *FileInfo

	Disambiguation Disambiguation
}

// NewPageListEntry creates an entry with no annotations beyond its title.
func NewPageListEntry(t Title) *PageListEntry {
	return &PageListEntry{Title: t}
}

// clone returns a shallow copy suitable for the copy-mutate-reinsert pattern
// used by annotation steps; pointer sub-records are themselves copied so
// concurrent annotators never share mutable state.
func (e *PageListEntry) clone() *PageListEntry {
	c := *e
	if e.Coordinates != nil {
		coord := *e.Coordinates
		c.Coordinates = &coord
	}
	if e.FileInfo != nil {
		fi := *e.FileInfo
		fi.FileUsage = append([]FileUsage(nil), e.FileInfo.FileUsage...)
		c.FileInfo = &fi
	}
	return &c
}

// hasCoreMetadata reports whether page id, size, and timestamp are all
// already known, used by LoadMissingMetadata to skip entries that don't
// need the page/revision join.
func (e *PageListEntry) hasCoreMetadata() bool {
	return e.PageID != 0 && e.PageBytes != 0 && e.PageTimestamp != ""
}

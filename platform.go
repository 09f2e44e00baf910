// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// candidateSourceOrder is the fixed order Platform.Run tries sources in
// when deciding whether any can run at all (§4.4 step 1).
var candidateSourceOrder = []string{"categories", "sparql", "manual", "pagepile", "search", "wikidata"}

// FormParameters is the already-parsed parameter dictionary Platform
// operates over. Parsing raw HTTP form values into this struct is out of
// scope (§1); callers build it directly.
type FormParameters struct {
	// Page sources.
	SearchQuery      string
	SearchWiki       string
	SearchMaxResults int
	ManualList       string
	ManualListWiki   string
	Sparql           string
	CategoriesWiki   string

	// Main wiki resolution.
	Language string
	Project  string

	// source_combination (§4.3); empty means build the default.
	SourceCombination string

	// filterWikidata (§4.4.1).
	WikidataPropItemUse []string
	WPIUNoStatements    bool
	WPIUNoSitelinks     bool
	WPIU                string // "all" | "any" | "none"

	// processSitelinks (§4.4.2).
	SitelinksYes     []string
	SitelinksAny     []string
	SitelinksNo      []string
	MinSitelinkCount int
	MaxSitelinkCount int

	// processLabels (§4.4.3).
	LabelsYes []string
	LabelsAny []string
	LabelsNo  []string
	LangsLabels string

	// convertToCommonWiki (§4.4.4).
	CommonWiki      string // "auto" | "cats" | "pagepile" | "manual" | "wikidata" | "other"
	CommonWikiOther string

	// processByWikidataItem (§4.4.6).
	WikidataItem string // "any" | "with" | "without"

	// processSubpages (§4.4.9).
	Subpages string // "" | "yes" | "only"

	// Wikidata label language for LoadMissingMetadata (§4.4.10).
	WikidataLabelLanguage string

	// regexpFilter (§4.4.11).
	RegexpFilter string

	// processRedlinks (§4.4.12).
	Redlinks         bool
	MinRedlinkCount  int

	// wdf_main (§4.4 step 5), handed to an injected collaborator.
	WDFMain string
}

// Platform orchestrates page sources, combination evaluation, and
// post-processing (§4.4). A Platform is shared by pointer across the
// goroutines it fans out to; all shared mutable state lives behind the
// AppState's own locks (§9 "Cyclic ownership").
type Platform struct {
	state   *AppState
	params  *FormParameters
	sources []DataSource
	api     MediaWikiAPI
	wdfist  WDFISTCollaborator

	titleParser   TitleParser
	serialQueries bool

	logger  *log.Logger
	metrics *Metrics

	sourceWikis map[string]string // source name -> wiki tag it ran against
}

// TitleParser resolves a raw page-title string (possibly namespace
// prefixed) into a Title for a given wiki. The full API-backed parser is
// out of scope (§1); defaultTitleParser provides a pragmatic canonical-
// namespace-name fallback, and callers may inject a fuller implementation.
type TitleParser interface {
	ParseTitle(ctx context.Context, wiki, raw string) (Title, error)
}

// WDFISTCollaborator is the injected WDFIST image-candidate routine
// (out of scope, §1; §4.4 step 5).
type WDFISTCollaborator interface {
	Run(ctx context.Context, items *PageList) (json []byte, err error)
}

// PlatformOption configures a Platform at construction.
type PlatformOption func(*Platform)

func WithAPI(api MediaWikiAPI) PlatformOption { return func(p *Platform) { p.api = api } }
func WithWDFIST(w WDFISTCollaborator) PlatformOption {
	return func(p *Platform) { p.wdfist = w }
}
func WithTitleParser(tp TitleParser) PlatformOption {
	return func(p *Platform) { p.titleParser = tp }
}
func WithSerialQueries(serial bool) PlatformOption {
	return func(p *Platform) { p.serialQueries = serial }
}
func WithLogger(l *log.Logger) PlatformOption { return func(p *Platform) { p.logger = l } }
func WithMetrics(m *Metrics) PlatformOption   { return func(p *Platform) { p.metrics = m } }
func WithSources(sources ...DataSource) PlatformOption {
	return func(p *Platform) { p.sources = sources }
}

// NewPlatform builds a Platform over state and params, with the standard
// in-scope sources (search, manual, sparql) pre-registered. WithSources
// replaces that list, so callers adding the categories/pagepile/wikidata/
// labels sources pass the full list of sources they want.
func NewPlatform(state *AppState, params *FormParameters, opts ...PlatformOption) *Platform {
	p := &Platform{
		state:       state,
		params:      params,
		sources:     []DataSource{SourceSearch{}, SourceManual{}, SourceSparql{}},
		titleParser: defaultTitleParser{},
		logger:      log.Default(),
		sourceWikis: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Platform) parseTitleForWiki(wiki, raw string) (Title, error) {
	return p.titleParser.ParseTitle(context.Background(), wiki, raw)
}

// queryWiki acquires a pool slot, connects to wiki, and runs query.
func (p *Platform) queryWiki(ctx context.Context, wiki, query string, args []any) (*sql.Rows, error) {
	return p.state.QueryWiki(ctx, wiki, query, args...)
}

// Run executes the full pipeline described in §4.4 and returns the final,
// post-processed PageList.
func (p *Platform) Run(ctx context.Context) (*PageList, error) {
	start := time.Now()
	if p.state != nil {
		p.state.ModifyThreadsRunning(1)
		defer p.state.ModifyThreadsRunning(-1)
	}

	enabled, err := p.enabledSources()
	if err != nil {
		return nil, err
	}

	results, err := p.runSources(ctx, enabled)
	if err != nil {
		return nil, err
	}

	comb, err := p.combination(namesOf(enabled))
	if err != nil {
		return nil, err
	}

	result, err := Evaluate(ctx, comb, p, results)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = NewPageList("")
	}

	usedCategories := containsSource(enabled, "categories")
	if err := p.postProcess(ctx, result, usedCategories); err != nil {
		return nil, err
	}

	if p.params.WDFMain != "" && p.wdfist != nil {
		if err := result.ConvertToWiki(ctx, "wikidatawiki", p); err != nil {
			return nil, err
		}
		if _, err := p.wdfist.Run(ctx, result); err != nil {
			return nil, newRemoteAPIError("wdfist: %w", err)
		}
		result.Clear()
	}

	elapsed := time.Since(start)
	p.logger.Printf("petscan: run finished in %s (%d entries)", humanize.RelTime(start, time.Now(), "", ""), result.Len())
	if p.metrics != nil {
		p.metrics.ObserveRunDuration(elapsed)
	}
	return result, nil
}

func namesOf(sources []DataSource) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	return names
}

func containsSource(sources []DataSource, name string) bool {
	for _, s := range sources {
		if s.Name() == name {
			return true
		}
	}
	return false
}

// enabledSources implements §4.4 step 1: try the fixed candidate order
// first; if none can run, fall back to "labels" alone; if still none,
// fail.
func (p *Platform) enabledSources() ([]DataSource, error) {
	byName := make(map[string]DataSource, len(p.sources))
	for _, s := range p.sources {
		byName[s.Name()] = s
	}

	var enabled []DataSource
	for _, name := range candidateSourceOrder {
		s, ok := byName[name]
		if !ok || !s.CanRun(p) {
			continue
		}
		enabled = append(enabled, s)
	}
	if len(enabled) > 0 {
		return enabled, nil
	}

	if s, ok := byName["labels"]; ok && s.CanRun(p) {
		return []DataSource{s}, nil
	}
	return nil, newParameterError("petscan: no possible data source")
}

// runSources implements §4.4 step 2: fan out one goroutine per enabled
// source, joined via an errgroup (mirrors the teacher's titles.go pattern).
func (p *Platform) runSources(ctx context.Context, enabled []DataSource) (map[string]*PageList, error) {
	type sourceResult struct {
		name string
		pl   *PageList
	}
	resultsChan := make(chan sourceResult, len(enabled))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, s := range enabled {
		s := s
		group.Go(func() error {
			pl, err := s.Run(groupCtx, p)
			if err != nil {
				return err
			}
			resultsChan <- sourceResult{name: s.Name(), pl: pl}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	close(resultsChan)

	results := make(map[string]*PageList)
	for r := range resultsChan {
		results[r.name] = r.pl
		if r.pl != nil {
			p.sourceWikis[r.name] = r.pl.Wiki()
		}
	}
	return results, nil
}

// combination implements §4.3's "no explicit source_combination" fallback.
func (p *Platform) combination(availableNames []string) (*Combination, error) {
	if strings.TrimSpace(p.params.SourceCombination) != "" {
		return ParseCombination(p.params.SourceCombination)
	}
	return DefaultCombination(availableNames), nil
}

// mainWiki resolves (language, project) to a wiki database name (§4.4
// "Resolution of the main wiki").
func (p *Platform) mainWiki() (string, error) {
	lang, project := p.params.Language, p.params.Project
	switch {
	case project == "wikipedia":
		return lang + "wiki", nil
	case project == "wikidata":
		return "wikidatawiki", nil
	case project == "commons":
		return "commonswiki", nil
	default:
		url := fmt.Sprintf("https://%s.%s.org", lang, project)
		wiki, ok := p.state.GetWikiForServerURL(url)
		if !ok {
			return "", newParameterError("petscan: cannot resolve wiki for language %q project %q", lang, project)
		}
		return wiki, nil
	}
}

// defaultTitleParser is a pragmatic stand-in for the out-of-scope,
// API-backed title parser (§1): it recognizes the canonical English
// namespace names MediaWiki always accepts regardless of local language
// ("File:", "Category:", "Template:", "Talk:", "User:"), and otherwise
// treats the whole string as namespace 0. Callers with access to a wiki's
// real namespace/alias table should inject their own TitleParser.
type defaultTitleParser struct{}

var canonicalNamespacePrefixes = map[string]int{
	"talk":      1,
	"user":      2,
	"user talk": 3,
	"file":      6,
	"image":     6,
	"template":  10,
	"category":  14,
}

func (defaultTitleParser) ParseTitle(ctx context.Context, wiki, raw string) (Title, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Title{}, newParameterError("petscan: empty title")
	}
	if idx := strings.IndexByte(raw, ':'); idx > 0 {
		prefix := strings.ToLower(strings.ReplaceAll(raw[:idx], "_", " "))
		if ns, ok := canonicalNamespacePrefixes[prefix]; ok {
			return NewTitle(raw[idx+1:], ns), nil
		}
	}
	return NewTitle(raw, 0), nil
}

// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"strings"
)

// DataSource is the capability set every page source implements: a stable
// name, a predicate over the current parameters, and a producer of an
// optionally wiki-tagged PageList (§4.2, §9 "Interfaces over sources").
type DataSource interface {
	Name() string
	CanRun(p *Platform) bool
	Run(ctx context.Context, p *Platform) (*PageList, error)
}

// MediaWikiAPI is the thin remote-call surface the in-scope sources need.
// It is injected into Platform rather than implemented here, because the
// HTTP dispatcher and the full API client are out of scope (§1).
type MediaWikiAPI interface {
	// Search runs action=query&list=search on wiki and returns up to max
	// matching titles.
	Search(ctx context.Context, wiki, query string, max int) ([]Title, error)

	// ParseTitle resolves a full title string (possibly namespace-prefixed)
	// against wiki's namespace configuration.
	ParseTitle(ctx context.Context, wiki, raw string) (Title, error)

	// SparqlQuery runs a SPARQL query against the Wikidata endpoint and
	// returns the bound values of the first result variable.
	SparqlQuery(ctx context.Context, query string) (firstVar string, bindings []string, err error)
}

// SourceSearch implements the "search" page source (§4.2).
type SourceSearch struct{}

func (SourceSearch) Name() string { return "search" }

func (SourceSearch) CanRun(p *Platform) bool {
	params := p.params
	return params.SearchQuery != "" && params.SearchWiki != "" && params.SearchMaxResults > 0
}

func (SourceSearch) Run(ctx context.Context, p *Platform) (*PageList, error) {
	params := p.params
	titles, err := p.api.Search(ctx, params.SearchWiki, params.SearchQuery, params.SearchMaxResults)
	if err != nil {
		return nil, newRemoteAPIError("search source: %w", err)
	}
	entries := make([]*PageListEntry, 0, len(titles))
	for _, t := range titles {
		entries = append(entries, NewPageListEntry(t))
	}
	return NewPageListFromEntries(params.SearchWiki, entries), nil
}

// SourceManual implements the "manual" page source (§4.2): a newline
// separated list of titles, tagged to a caller-chosen wiki.
type SourceManual struct{}

func (SourceManual) Name() string { return "manual" }

func (SourceManual) CanRun(p *Platform) bool {
	params := p.params
	return params.ManualList != "" && params.ManualListWiki != ""
}

func (SourceManual) Run(ctx context.Context, p *Platform) (*PageList, error) {
	params := p.params
	var entries []*PageListEntry
	for _, line := range strings.Split(params.ManualList, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t, err := p.api.ParseTitle(ctx, params.ManualListWiki, line)
		if err != nil {
			continue // data-shape error: unparseable title, silently dropped (§7)
		}
		entries = append(entries, NewPageListEntry(t))
	}
	return NewPageListFromEntries(params.ManualListWiki, entries), nil
}

// SourceSparql implements the "sparql" page source (§4.2): entity ids from
// the first bound SPARQL result column, mapped to namespaces by prefix.
type SourceSparql struct{}

func (SourceSparql) Name() string { return "sparql" }

func (SourceSparql) CanRun(p *Platform) bool {
	return strings.TrimSpace(p.params.Sparql) != ""
}

func (SourceSparql) Run(ctx context.Context, p *Platform) (*PageList, error) {
	_, bindings, err := p.api.SparqlQuery(ctx, p.params.Sparql)
	if err != nil {
		return nil, newRemoteAPIError("sparql source: %w", err)
	}
	var entries []*PageListEntry
	for _, entity := range bindings {
		if entity == "" {
			continue
		}
		ns, ok := sparqlEntityNamespace(entity[0])
		if !ok {
			continue
		}
		entries = append(entries, NewPageListEntry(NewTitle(entity, ns)))
	}
	return NewPageListFromEntries("wikidatawiki", entries), nil
}

func sparqlEntityNamespace(prefix byte) (int, bool) {
	switch prefix {
	case 'Q':
		return 0, true
	case 'P':
		return 120, true
	case 'L':
		return 146, true
	default:
		return 0, false
	}
}

// externalSource adapts a caller-injected fetch function to the DataSource
// interface, for the sources this module treats as external collaborators
// behind the same interface as the in-scope ones (§4.2: pagepile, wikidata,
// labels).
type externalSource struct {
	name   string
	canRun func(p *Platform) bool
	run    func(ctx context.Context, p *Platform) (*PageList, error)
}

func (s *externalSource) Name() string                 { return s.name }
func (s *externalSource) CanRun(p *Platform) bool       { return s.canRun != nil && s.canRun(p) }
func (s *externalSource) Run(ctx context.Context, p *Platform) (*PageList, error) {
	return s.run(ctx, p)
}

// NewExternalSource builds a DataSource for pagepile/wikidata/labels/any
// other collaborator whose protocol is out of scope for this module, by
// wrapping caller-supplied canRun/run functions.
func NewExternalSource(name string, canRun func(p *Platform) bool, run func(ctx context.Context, p *Platform) (*PageList, error)) DataSource {
	return &externalSource{name: name, canRun: canRun, run: run}
}

// SourceDatabaseParameters is the full filter surface for the "categories"
// page source's database-filter mode (§4.2a, supplementing the original's
// dropped db_params()). The nested category-tree SQL synthesis itself is
// out of scope (§1) and is delegated to CategoryTreeQueryBuilder.
type SourceDatabaseParameters struct {
	Categories         []string
	CombineCategories  string // "subset" or "union"
	Depth              int
	Namespaces         []int
	TemplatesYes       []string
	TemplatesNo        []string
	LinksTo            []string
	LinksFrom          []string
	MinEditDate        string
	MaxEditDate        string
	OnlyNew            bool
}

// Validate checks internal consistency before the parameters are handed to
// the injected query builder (§8 scenario 8).
func (p *SourceDatabaseParameters) Validate() error {
	if p.Depth != 0 && len(p.Categories) == 0 {
		return newParameterError("petscan: database filter depth given without any category")
	}
	if p.MinEditDate != "" && p.MaxEditDate != "" && p.MinEditDate > p.MaxEditDate {
		return newParameterError("petscan: database filter min edit date %q after max edit date %q", p.MinEditDate, p.MaxEditDate)
	}
	return nil
}

// CategoryTreeQueryBuilder synthesizes the nested category-tree SQL
// fragment for SourceDatabaseParameters; out of scope per §1, injected by
// the caller. SourceDatabase below owns validation, batching, and result
// materialization around whatever this produces.
type CategoryTreeQueryBuilder interface {
	BuildQuery(params *SourceDatabaseParameters) (skeleton string, args []any, err error)
}

// SourceDatabase implements the "categories" page source's database-filter
// mode (§4.2, §4.2a). Its CanRun/Run delegate to an injected
// CategoryTreeQueryBuilder for the actual nested-category SQL.
type SourceDatabase struct {
	Params       *SourceDatabaseParameters
	QueryBuilder CategoryTreeQueryBuilder
}

func (s *SourceDatabase) Name() string { return "categories" }

func (s *SourceDatabase) CanRun(p *Platform) bool {
	return s.Params != nil && len(s.Params.Categories) > 0 && s.QueryBuilder != nil
}

func (s *SourceDatabase) Run(ctx context.Context, p *Platform) (*PageList, error) {
	if err := s.Params.Validate(); err != nil {
		return nil, err
	}
	skeleton, args, err := s.QueryBuilder.BuildQuery(s.Params)
	if err != nil {
		return nil, newParameterError("petscan: category tree query: %v", err)
	}
	wiki := p.params.CategoriesWiki
	rows, err := p.queryWiki(ctx, wiki, skeleton, args)
	if err != nil {
		return nil, newDatabaseError("categories source: %w", err)
	}
	defer rows.Close()

	pl := NewPageList(wiki)
	for rows.Next() {
		var title string
		var ns int
		if err := rows.Scan(&title, &ns); err != nil {
			return nil, newDatabaseError("categories source: scanning row: %w", err)
		}
		pl.Put(NewPageListEntry(NewTitle(title, ns)))
	}
	if err := rows.Err(); err != nil {
		return nil, newDatabaseError("categories source: %w", err)
	}
	return pl, nil
}

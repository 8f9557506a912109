// Package catalog serves the read-only product catalog.
//
// Products come from a YAML seed (embedded by default). The catalog holds an
// immutable snapshot behind an atomic pointer; Reload and the file watcher
// build a new snapshot and swap it in, so readers never block.
package catalog

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/search"
)

type snapshot struct {
	products []domain.Product
	byID     map[string]int
	byName   map[string]int
	text     search.Index
	names    search.Index
	users    []SeedUser
}

// Catalog is safe for concurrent use.
type Catalog struct {
	path string
	snap atomic.Pointer[snapshot]
}

// Open loads the seed at path (embedded default when empty).
func Open(path string) (*Catalog, error) {
	seed, err := LoadSeed(path)
	if err != nil {
		return nil, err
	}
	c := &Catalog{path: path}
	c.snap.Store(build(seed))
	return c, nil
}

// FromSeed builds a catalog from an already parsed seed.
func FromSeed(seed Seed) *Catalog {
	c := &Catalog{}
	c.snap.Store(build(seed))
	return c
}

// Path returns the seed file path ("" for the embedded default).
func (c *Catalog) Path() string { return c.path }

// Reload re-reads the seed file. On error the current snapshot stays.
func (c *Catalog) Reload() error {
	seed, err := LoadSeed(c.path)
	if err != nil {
		return err
	}
	c.snap.Store(build(seed))
	return nil
}

func build(seed Seed) *snapshot {
	s := &snapshot{
		products: make([]domain.Product, 0, len(seed.Products)),
		byID:     make(map[string]int, len(seed.Products)),
		byName:   make(map[string]int, len(seed.Products)),
		users:    seed.Users,
	}
	textDocs := make([]search.Doc, 0, len(seed.Products))
	nameDocs := make([]search.Doc, 0, len(seed.Products))
	for i, sp := range seed.Products {
		p := sp.Product()
		s.products = append(s.products, p)
		s.byID[p.ID] = i
		s.byName[search.NormalizeName(p.Name)] = i
		textDocs = append(textDocs, search.Doc{
			ID:   p.ID,
			Text: strings.Join([]string{p.Name, p.Category, p.Description, p.ImageHint}, " "),
		})
		nameDocs = append(nameDocs, search.Doc{ID: p.ID, Text: p.Name + " " + p.ImageHint})
	}
	s.text = search.New(textDocs, search.WithStopwords(search.DefaultStopwords))
	s.names = search.New(nameDocs, search.WithStopwords(search.DefaultStopwords))
	return s
}

// All returns every product in seed order.
func (c *Catalog) All() []domain.Product {
	s := c.snap.Load()
	out := make([]domain.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Get returns the product with id.
func (c *Catalog) Get(id string) (domain.Product, bool) {
	s := c.snap.Load()
	i, ok := s.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return s.products[i], true
}

// Known filters ids down to those present in the catalog, keeping order and
// dropping duplicates.
func (c *Catalog) Known(ids []string) []string {
	s := c.snap.Load()
	return lo.Uniq(lo.Filter(ids, func(id string, _ int) bool {
		_, ok := s.byID[id]
		return ok
	}))
}

// Names returns the names of the given products, skipping unknown ids.
func (c *Catalog) Names(ids []string) []string {
	return lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		p, ok := c.Get(id)
		return p.Name, ok
	})
}

// Categories lists distinct categories sorted by name.
func (c *Catalog) Categories() []string {
	s := c.snap.Load()
	cats := lo.Uniq(lo.Map(s.products, func(p domain.Product, _ int) string { return p.Category }))
	sort.Strings(cats)
	return cats
}

// Users returns the seed users.
func (c *Catalog) Users() []SeedUser {
	s := c.snap.Load()
	out := make([]SeedUser, len(s.users))
	copy(out, s.users)
	return out
}

// Query selects a page of products.
type Query struct {
	Text     string
	Category string
	Page     int
	PageSize int
}

// List returns a page of products and the total number of matches. A text
// query orders by relevance; otherwise seed order is kept.
func (c *Catalog) List(q Query) ([]domain.Product, int) {
	s := c.snap.Load()
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}

	var matched []domain.Product
	if strings.TrimSpace(q.Text) != "" {
		for _, r := range s.text.TopK(q.Text, 0) {
			matched = append(matched, s.products[s.byID[r.ID]])
		}
	} else {
		matched = s.products
	}
	if q.Category != "" {
		matched = lo.Filter(matched, func(p domain.Product, _ int) bool {
			return strings.EqualFold(p.Category, q.Category)
		})
	}

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return []domain.Product{}, total
	}
	end := min(start+q.PageSize, total)
	out := make([]domain.Product, end-start)
	copy(out, matched[start:end])
	return out, total
}

// Search returns up to k products matching text by relevance.
func (c *Catalog) Search(text string, k int) []domain.Product {
	s := c.snap.Load()
	return lo.Map(s.text.TopK(text, k), func(r search.Result, _ int) domain.Product {
		return s.products[s.byID[r.ID]]
	})
}

// FindByName resolves a spoken or typed product name: an exact
// case-insensitive match wins, otherwise the closest name by token overlap.
func (c *Catalog) FindByName(name string) (domain.Product, bool) {
	s := c.snap.Load()
	if i, ok := s.byName[search.NormalizeName(name)]; ok {
		return s.products[i], true
	}
	best := s.names.TopK(name, 1)
	if len(best) == 0 {
		return domain.Product{}, false
	}
	return s.products[s.byID[best[0].ID]], true
}

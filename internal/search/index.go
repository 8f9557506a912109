// Package search provides a deterministic, concurrency-safe in-memory token
// index over short documents such as product names and descriptions.
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with case and accent folding
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set: score = |Q ∩ D| / |Q ∪ D|. A query token that is a
// prefix of a document token counts as a half match, so partial words typed
// into a search box still rank.
package search

import (
	"sort"
	"strings"
)

// Doc is an indexed document.
type Doc struct {
	ID   string
	Text string
}

// Result is a ranked document id with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{stopwords: nil, maxDocs: 0}
}

// WithStopwords drops the given words from documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = Fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps the number of indexed documents.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// New builds an Index from docs. Documents without tokens are skipped.
func New(docs []Doc, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := Tokenize(d.Text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: out}
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching documents. k <= 0 returns every match.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := Tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	buf := make([]Result, 0, len(i.docs))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens)+len(d.tokens)) - over
		if union <= 0 {
			continue
		}
		buf = append(buf, Result{ID: d.id, Score: over / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		return buf[a].ID < buf[b].ID
	})
	if k > 0 && k < len(buf) {
		buf = buf[:k]
	}
	return buf
}

// ----------------------------------------------------------------------------
// Helpers

// overlap counts exact token matches as 1 and prefix matches as 0.5.
func overlap(q, d map[string]struct{}) float64 {
	var n float64
	for t := range q {
		if _, ok := d[t]; ok {
			n++
			continue
		}
		if len([]rune(t)) < 3 {
			continue
		}
		for dt := range d {
			if strings.HasPrefix(dt, t) {
				n += 0.5
				break
			}
		}
	}
	return n
}

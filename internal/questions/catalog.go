// Package questions serves the built-in interview question bank.
package questions

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/ashureev/pairroom/internal/domain"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 10

//go:embed questions.json
var builtin []byte

// Filter narrows List and Random. Zero fields match everything.
type Filter struct {
	Difficulty domain.Difficulty
	Category   string
	Limit      int
}

func (f Filter) match(q *domain.Question) bool {
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	if f.Category != "" && q.Category != f.Category {
		return false
	}
	return true
}

// Catalog is an immutable, ordered set of questions.
type Catalog struct {
	questions []*domain.Question
	byID      map[string]*domain.Question
}

// Load returns the embedded question bank.
func Load() (*Catalog, error) {
	return Parse(builtin)
}

// Parse builds a catalog from a JSON array of questions.
func Parse(data []byte) (*Catalog, error) {
	var qs []*domain.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}

	c := &Catalog{byID: make(map[string]*domain.Question, len(qs))}
	for i, q := range qs {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i)
		}
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		for lang := range q.StarterCode {
			if !lang.Valid() {
				return nil, fmt.Errorf("question %q: unsupported starter language %q", q.ID, lang)
			}
		}
		c.questions = append(c.questions, q)
		c.byID[q.ID] = q
	}
	return c, nil
}

// Get returns the question with id.
func (c *Catalog) Get(id string) (*domain.Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// List returns questions matching f in catalog order, at most f.Limit
// (DefaultLimit when unset).
func (c *Catalog) List(f Filter) []*domain.Question {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]*domain.Question, 0, min(limit, len(c.questions)))
	for _, q := range c.questions {
		if len(out) == limit {
			break
		}
		if f.match(q) {
			out = append(out, q)
		}
	}
	return out
}

// Random returns a uniformly chosen question matching f, or nil if none match.
func (c *Catalog) Random(f Filter) *domain.Question {
	var pool []*domain.Question
	for _, q := range c.questions {
		if f.match(q) {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	return pool[rand.Intn(len(pool))]
}

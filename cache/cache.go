// Package cache memoizes compiled constraints and their transition
// indexes across sessions. Builds for the same (pattern, tokenizer) key
// are coalesced into a single flight; completed entries are immutable and
// evicted least-recently-used. A session keeps its own reference to an
// entry, so eviction never invalidates decoding in progress.
package cache

import (
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/railgen/railgen/automaton"
	"github.com/railgen/railgen/grammar"
	"github.com/railgen/railgen/index"
	"github.com/railgen/railgen/model"
)

const DefaultMaxEntries = 64

// Entry pairs a compiled machine with its vocabulary index. Entries are
// immutable once returned.
type Entry struct {
	Machine automaton.Machine
	Index   *index.Index
}

type Options struct {
	// MaxEntries bounds the cache; DefaultMaxEntries when zero.
	MaxEntries int
}

type Cache struct {
	entries *lru.Cache
	group   singleflight.Group
	build   func(grammar.Constraint, model.Tokenizer) (*Entry, error)
}

func New(opts Options) (*Cache, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	entries, err := lru.New(opts.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries, build: buildEntry}, nil
}

func buildEntry(c grammar.Constraint, tok model.Tokenizer) (*Entry, error) {
	start := time.Now()
	m, err := grammar.Compile(c)
	if err != nil {
		return nil, err
	}
	ix, err := index.Build(m, tok)
	if err != nil {
		return nil, err
	}
	slog.Debug("compiled constraint", "kind", c.Kind().String(), "took", time.Since(start))
	return &Entry{Machine: m, Index: ix}, nil
}

// GetOrBuild returns the cached entry for the constraint and tokenizer,
// building it at most once per key no matter how many callers race.
// Failed builds are not cached; the next caller retries.
func (c *Cache) GetOrBuild(constraint grammar.Constraint, tok model.Tokenizer) (*Entry, error) {
	key := constraint.Signature() + ":" + tok.Vocabulary().Signature()
	if v, ok := c.entries.Get(key); ok {
		return v.(*Entry), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// a finished flight may have populated the cache after our miss
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		entry, err := c.build(constraint, tok)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Len reports the number of resident entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

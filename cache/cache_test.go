package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/railgen/railgen/grammar"
	"github.com/railgen/railgen/model"
	"github.com/railgen/railgen/model/modeltest"
)

func countingCache(t *testing.T, builds *atomic.Int64) *Cache {
	t.Helper()
	c, err := New(Options{})
	assert.NilError(t, err)
	inner := c.build
	c.build = func(con grammar.Constraint, tok model.Tokenizer) (*Entry, error) {
		builds.Add(1)
		return inner(con, tok)
	}
	return c
}

func TestGetOrBuildCachesByKey(t *testing.T) {
	var builds atomic.Int64
	c := countingCache(t, &builds)
	tok := modeltest.Chars("abc")

	a, err := c.GetOrBuild(grammar.FromRegex(`[abc]+`), tok)
	assert.NilError(t, err)
	b, err := c.GetOrBuild(grammar.FromRegex(`[abc]+`), tok)
	assert.NilError(t, err)
	assert.Assert(t, a == b, "same key must return the same entry")
	assert.Equal(t, builds.Load(), int64(1))

	_, err = c.GetOrBuild(grammar.FromRegex(`[ab]+`), tok)
	assert.NilError(t, err)
	assert.Equal(t, builds.Load(), int64(2))
	assert.Equal(t, c.Len(), 2)
}

func TestGetOrBuildKeyedByVocabulary(t *testing.T) {
	var builds atomic.Int64
	c := countingCache(t, &builds)

	_, err := c.GetOrBuild(grammar.FromRegex(`[abc]+`), modeltest.Chars("abc"))
	assert.NilError(t, err)
	_, err = c.GetOrBuild(grammar.FromRegex(`[abc]+`), modeltest.Chars("abcd"))
	assert.NilError(t, err)
	assert.Equal(t, builds.Load(), int64(2))
}

func TestGetOrBuildSingleFlight(t *testing.T) {
	var builds atomic.Int64
	c := countingCache(t, &builds)
	tok := modeltest.Chars("0123456789.")

	const callers = 16
	var wg sync.WaitGroup
	entries := make([]*Entry, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := c.GetOrBuild(grammar.FromRegex(`[0-9]{1,3}(\.[0-9]{1,3}){3}`), tok)
			assert.NilError(t, err)
			entries[i] = e
		}()
	}
	wg.Wait()

	assert.Equal(t, builds.Load(), int64(1), "racing callers must share one build")
	for _, e := range entries[1:] {
		assert.Assert(t, e == entries[0])
	}
}

func TestFailedBuildNotCached(t *testing.T) {
	var builds atomic.Int64
	c := countingCache(t, &builds)
	tok := modeltest.Chars("a")

	_, err := c.GetOrBuild(grammar.FromRegex(`a(`), tok)
	var ce *grammar.CompileError
	assert.Assert(t, errors.As(err, &ce))
	assert.Equal(t, c.Len(), 0)

	// the next caller retries instead of seeing a cached failure
	_, err = c.GetOrBuild(grammar.FromRegex(`a(`), tok)
	assert.Assert(t, err != nil)
	assert.Equal(t, builds.Load(), int64(2))
}

func TestEviction(t *testing.T) {
	c, err := New(Options{MaxEntries: 2})
	assert.NilError(t, err)
	tok := modeltest.Chars("abc")

	for _, p := range []string{`a+`, `b+`, `c+`} {
		_, err := c.GetOrBuild(grammar.FromRegex(p), tok)
		assert.NilError(t, err)
	}
	assert.Equal(t, c.Len(), 2)

	// the evicted entry rebuilds on demand
	e, err := c.GetOrBuild(grammar.FromRegex(`a+`), tok)
	assert.NilError(t, err)
	assert.Assert(t, e != nil)
}

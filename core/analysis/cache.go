package analysis

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/classflow/classflow/core/jclass"
)

const resultCacheCap = 4096

// ResultCache memoizes analyzer results per method. Deobfuscation passes
// re-request the same frames many times between mutations; the cache is
// invalidated by dropping the method's entry whenever its code changes.
type ResultCache struct {
	results *lru.Cache[*jclass.Method, *Result]
}

func NewResultCache() *ResultCache {
	cache, _ := lru.New[*jclass.Method, *Result](resultCacheCap)
	return &ResultCache{results: cache}
}

// Get returns the cached result for m, or nil.
func (c *ResultCache) Get(m *jclass.Method) *Result {
	res, ok := c.results.Get(m)
	if !ok {
		cacheMisses.Inc(1)
		return nil
	}
	cacheHits.Inc(1)
	return res
}

// Add stores the result for m.
func (c *ResultCache) Add(m *jclass.Method, res *Result) {
	c.results.Add(m, res)
}

// Invalidate drops the entry for m.
func (c *ResultCache) Invalidate(m *jclass.Method) {
	c.results.Remove(m)
}

// CachingAnalyzer pairs an analyzer with a result cache.
type CachingAnalyzer struct {
	analyzer *Analyzer
	cache    *ResultCache
}

func NewCachingAnalyzer() *CachingAnalyzer {
	return &CachingAnalyzer{analyzer: NewAnalyzer(), cache: NewResultCache()}
}

// Analyze returns the cached result for m or runs the analyzer and caches
// the outcome. Failed analyses are not cached.
func (c *CachingAnalyzer) Analyze(m *jclass.Method) (*Result, error) {
	if res := c.cache.Get(m); res != nil {
		return res, nil
	}
	res, err := c.analyzer.Analyze(m)
	if err != nil {
		return nil, err
	}
	c.cache.Add(m, res)
	return res, nil
}

// Invalidate drops the cached result for m after its code was rewritten.
func (c *CachingAnalyzer) Invalidate(m *jclass.Method) {
	c.cache.Invalidate(m)
}

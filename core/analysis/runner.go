package analysis

import (
	"sync"

	"github.com/classflow/classflow/common/gopool"
	"github.com/classflow/classflow/core/jclass"
	"github.com/classflow/classflow/log"
)

// MethodResult pairs one method with the outcome of its analysis. Exactly
// one of Result and Err is set.
type MethodResult struct {
	Method *jclass.Method
	Result *Result
	Err    error
}

// AnalyzeAll runs the analyzer over every method of every class in the
// pool. Methods are independent and the frozen pool is read-only, so the
// work fans out over the shared goroutine pool, sized to the method count.
// Results arrive in pool iteration order regardless of completion order.
func AnalyzeAll(pool *jclass.Pool) []MethodResult {
	var methods []*jclass.Method
	for _, c := range pool.Classes() {
		methods = append(methods, c.Methods...)
	}

	results := make([]MethodResult, len(methods))
	analyzer := NewAnalyzer()

	jobs := make(chan int, len(methods))
	for i := range methods {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	workers := gopool.Threads(len(methods))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		worker := func() {
			defer wg.Done()
			for i := range jobs {
				m := methods[i]
				res, err := analyzer.Analyze(m)
				results[i] = MethodResult{Method: m, Result: res, Err: err}
			}
		}
		if err := gopool.Submit(worker); err != nil {
			// Pool unavailable: run the worker inline.
			worker()
		}
	}
	wg.Wait()

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	log.Debug("pool analysis complete", "methods", len(methods), "workers", workers, "failures", failures)
	return results
}

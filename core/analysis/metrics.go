package analysis

import (
	"github.com/rcrowley/go-metrics"

	"github.com/classflow/classflow/log"
)

var (
	analyzeTimer    = metrics.NewRegisteredTimer("analysis/analyze", nil)
	analyzedMethods = metrics.NewRegisteredCounter("analysis/methods", nil)
	analyzeFailures = metrics.NewRegisteredCounter("analysis/failures", nil)
	framesEmitted   = metrics.NewRegisteredCounter("analysis/frames", nil)
	cacheHits       = metrics.NewRegisteredCounter("analysis/cache/hits", nil)
	cacheMisses     = metrics.NewRegisteredCounter("analysis/cache/misses", nil)
)

// failureLogFilter keeps exhaustion warnings from flooding the log when a
// jar full of pathological methods is analyzed in one run.
var failureLogFilter = log.EveryN{N: 100}

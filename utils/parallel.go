package utils

import (
	"runtime"
)

// ParallelFactor is the default number of files decoded concurrently. It might be useful to
// lower it in tests or on machines where the decoder is memory hungry.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

// Workers clamps a requested worker count to [1, jobs], substituting ParallelFactor for a
// non-positive request.
func Workers(requested, jobs int) int {
	if requested <= 0 {
		requested = ParallelFactor
	}
	if jobs > 0 && requested > jobs {
		requested = jobs
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

package core

import (
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// parallelThreshold is the dataset size below which keys are computed inline.
const parallelThreshold = 4096

// cloneKey is the identity of a record's content. Subtype qualification
// appends the raw subtype field.
func cloneKey(r Record, qualify bool) string {
	canonical := strings.ToUpper(r.Sequence)
	if !qualify {
		return canonical
	}
	return canonical + "\x00" + r.Fields.Subtype
}

// cloneKeys computes the key of every record in dataset order. Large inputs
// are split into contiguous chunks hashed concurrently; each slot is written
// by exactly one goroutine so the result does not depend on scheduling.
func cloneKeys(in Dataset, qualify bool, workers int) []string {
	n := in.Len()
	keys := make([]string, n)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if n < parallelThreshold || workers == 1 {
		for i := 0; i < n; i++ {
			keys[i] = cloneKey(in.At(i), qualify)
		}
		return keys
	}
	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				keys[i] = cloneKey(in.At(i), qualify)
			}
			return nil
		})
	}
	_ = g.Wait()
	return keys
}

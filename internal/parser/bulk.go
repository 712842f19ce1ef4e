package parser

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// FileResult is one path's outcome from a bulk load.
type FileResult struct {
	Path     string
	Messages []Message
	Err      error
}

// LoadAll runs ParseFile over every path in paths, bounded by a counting
// semaphore sized to available parallelism, per spec §4.2's performance
// target ("bulk loads during session discovery are parallelized across
// available cores, bounded by a counting semaphore sized to available
// parallelism"). Results are returned in the same order as paths. Every
// skipped line across every file calls onSkip with the path it came
// from alongside the line number and reason (nil is fine — skips stay
// silent).
func LoadAll(ctx context.Context, paths []string, onSkip func(path string, lineNo int, reason string)) ([]FileResult, error) {
	results := make([]FileResult, len(paths))

	limit := int64(runtime.GOMAXPROCS(0))
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	var wg sync.WaitGroup
	for i, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			return results, fmt.Errorf("parser: bulk load cancelled: %w", err)
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer sem.Release(1)
			var lineSkip func(lineNo int, reason string)
			if onSkip != nil {
				lineSkip = func(lineNo int, reason string) { onSkip(path, lineNo, reason) }
			}
			msgs, err := ParseFile(path, lineSkip)
			results[i] = FileResult{Path: path, Messages: msgs, Err: err}
		}(i, path)
	}
	wg.Wait()
	return results, nil
}

package rtb

import (
	"context"
	"fmt"
	"sync"
)

// FanOut runs task once per item, each in its own goroutine, and waits for all of them.
// Results land in the slot of their input index, so the output order is the input order
// regardless of completion order. A panicking task is converted by onPanic instead of
// taking the process down; the other tasks are unaffected.
func FanOut[T, R any](
	ctx context.Context,
	items []T,
	task func(ctx context.Context, i int, item T) R,
	onPanic func(i int, item T, recovered any) R,
) []R {
	out := make([]R, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		go func(i int, item T) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					out[i] = onPanic(i, item, r)
				}
			}()
			out[i] = task(ctx, i, item)
		}(i, item)
	}
	wg.Wait()
	return out
}

func panicMessage(r any) string {
	return fmt.Sprintf("rtb: bidder panicked: %v", r)
}

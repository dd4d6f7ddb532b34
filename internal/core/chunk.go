package core

import "slices"

// Chunk splits items into consecutive chunks of at most size elements,
// preserving order. The last chunk may be shorter. Chunks share the backing
// array of items but are capacity-clipped, so appending to one never
// overwrites its neighbour. Chunk panics if size is less than 1.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		panic("core: chunk size must be positive")
	}
	return slices.Collect(slices.Chunk(items, size))
}

// Package memory provides fixed-capacity slab pools for hot-path records.
// All slots are pre-allocated in one contiguous region at construction, so
// steady-state acquisition and release never touch the Go allocator. The
// free list is threaded through per-slot arena indices, which keeps the
// pools generic while preserving O(1) LIFO reuse (the most recently freed
// slot is the most likely to still be in cache).
package memory

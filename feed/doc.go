// Package feed adapts an L2 market-data stream to the order book. Messages
// arrive on an ingest goroutine, cross the SPSC ring, and are applied to the
// book by the single consumer goroutine through the book's mutation API.
// Sequence gaps are detected and reported; backpressure surfaces as a drop
// counter, never as blocking.
package feed

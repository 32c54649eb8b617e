// Package orderbook implements the single-symbol limit order book core: a
// two-sided price-level book over pooled, intrusively linked order records,
// and a matching engine applying price-time priority with limit, market,
// IOC, and FOK semantics plus self-trade prevention.
//
// The book and engine are single-writer by design: one goroutine owns every
// mutation and read on an instance. The matching sweep performs no locking,
// no allocation, and no system calls; all failure modes are return values.
package orderbook

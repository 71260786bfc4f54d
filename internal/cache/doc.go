// Package cache implements the CacheTier (C1): a three-tier cascade for
// embeddings and full answers.
//
// Tiers are probed in order on read: (a) an in-process, fixed-capacity
// store evicted by strict FIFO insertion order (not recency of read —
// this matches the original source's embedding cache behavior and is a
// deliberately preserved, documented choice; see DESIGN.md); (b) an
// out-of-process shared cache (Redis, via go-redis/v9); (c) an optional
// on-disk cache keyed by a hash of the text. A hit at tier N is promoted
// to every higher tier. A miss at every tier leaves the computation to
// the caller, who writes the result to (c), then (b), then (a).
//
// Cache unavailability at any tier is logged and skipped; it never fails
// the request. Keys are deterministic per spec: "namespace:md5(payload)".
package cache

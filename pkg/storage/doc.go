// Package storage defines the persistence contracts for the relay core:
// subscriber records, published messages, and the cache that fronts
// message reads.
//
// # Interfaces
//
//   - SubscriberStore: durable subscriber CRUD and active-state transitions
//   - MessageStore: append-only published message storage
//   - MessageCache: short-TTL key/value cache, a read accelerator only
//
// Concrete implementations live in pkg/storage/postgres (durable stores)
// and pkg/cache (redis). Point lookups return (nil, nil) on absence;
// errors are reserved for infrastructure faults.
//
// # Ownership
//
// The stores exclusively own persisted rows. The cache owns only ephemeral
// projections and never the decision of whether data exists: a cache miss
// always falls through to the message store.
package storage

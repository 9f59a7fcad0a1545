// Package cache defines the key-value store that maps package names to
// resolved version strings. The store exposes get/put-with-ttl primitives with
// an explicit ErrNotFound sentinel so that a miss is a normal outcome rather
// than a transport failure. Two backends are provided: a Redis-backed store
// for shared deployments and an in-process store for single-node setups and
// tests. The resolver depends only on the Store interface.
package cache

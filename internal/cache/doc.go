// Package cache defines the generation-scoped persistent store that backs the
// documentation proxy. A Storage holds any number of named generations; each
// generation (Store) maps a request identity (absolute upstream URL) to a
// Snapshot of the response observed for it. Two backends are provided: a
// disk layout under StoragePath/caches (temp file + rename writes) and a SQL
// layout served through bun for sqlite and postgres deployments.
package cache

// Package store implements the scoped key/value cache the harness keeps its
// per-run state in.
//
// Scopes form an explicit tree (suite → group → case). Each scope owns a
// Store; there is no parent delegation and no goroutine-local state. The
// shared server handle lives in the suite store, deployment records and
// resolved addresses live in the store of the group they belong to.
//
// Store.ComputeIfAbsent guarantees that the factory for a key runs at most
// once even when many goroutines miss at the same time, which is what keeps
// parallel groups from launching more than one server process.
package store

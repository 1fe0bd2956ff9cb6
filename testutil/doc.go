// Package testutil provides fixtures and helpers shared by package tests.
//
// Fixture builds store snapshots with readable ids; BlogFixture is a small
// consistent graph used across resolver and gateway tests. SequentialIDs
// replaces random UUIDs where tests need predictable ids.
//
// Asynchronous delivery is tested with WaitFor, Receive and AssertNoValue,
// which poll or select with a timeout instead of sleeping. MockPublisher
// records payloads for code that publishes to NATS.
package testutil

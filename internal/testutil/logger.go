// Package testutil provides shared test infrastructure: a silent
// logger, deterministic model and embedder mocks, and a PostgreSQL
// container harness for integration tests.
package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that drops all output. Use it in
// tests to keep component logging out of test output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

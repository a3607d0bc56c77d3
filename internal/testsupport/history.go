package testsupport

import (
	"testing"

	"pressing/internal/config"
	"pressing/internal/history"
)

// MustOpenHistory opens the run history for cfg and closes it with the test.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

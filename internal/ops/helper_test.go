package ops

import (
	"testing"

	"exchange/internal/journal"
)

func journalProcessor(t *testing.T) journal.Processor {
	t.Helper()
	p := journal.NewMemoryProcessor()
	t.Cleanup(func() { _ = p.Close() })
	return p
}

package sqlite_test

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/store/sqlite"
	"github.com/xraph/tally/store/storetest"
)

func TestConformance(t *testing.T) {
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "tally.db"),
		sqlite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, s)
}

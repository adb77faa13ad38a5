package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gateway.log")
	log, err := New("debug", path)
	require.NoError(t, err)

	log.Named("test").Debug("hello")
	_ = log.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), `"msg":"hello"`), string(b))
	require.True(t, strings.Contains(string(b), `"logger":"test"`), string(b))
}

func TestNewUnknownLevelFallsBack(t *testing.T) {
	log, err := New("loud", "")
	require.NoError(t, err)
	require.NotNil(t, log)
}

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFile(t *testing.T) {
	t.Setenv("DEBUG", "")
	path := filepath.Join(t.TempDir(), "logs", "sniper.log")

	l, err := New(Config{Level: "warn", OutputFile: path, MaxSize: 1})
	require.NoError(t, err)
	require.Equal(t, logrus.WarnLevel, l.GetLevel())

	l.Warn("hello")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "hello")
}

func TestNew_DebugEnvOverridesLevel(t *testing.T) {
	t.Setenv("DEBUG", "true")
	l, err := New(Config{Level: "error"})
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	t.Setenv("DEBUG", "")
	l, err := New(Config{Level: "loud"})
	require.NoError(t, err)
	require.Equal(t, logrus.InfoLevel, l.GetLevel())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".tabula", "projects"), c.ProjectsDir)
	assert.Equal(t, 0.8, c.Split)
	assert.Equal(t, "auto", c.ClassWeight)
	assert.Equal(t, "128-64", c.Arch)
	assert.Equal(t, 0.2, c.Dropout)
	assert.Equal(t, 0.001, c.LearningRate)
	assert.Equal(t, 25, c.Epochs)
	assert.Equal(t, 32, c.BatchSize)
	assert.Equal(t, 0.1, c.ValidationSplit)
	assert.Equal(t, 60, c.HTTPTimeoutSec)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cfg.yaml")

	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Set("epochs", "10"))
	require.NoError(t, c.Set("arch", "32-16"))
	require.NoError(t, c.Set("class_weight", "NONE"))
	require.NoError(t, Save(c, path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, back.Epochs)
	assert.Equal(t, "32-16", back.Arch)
	assert.Equal(t, "none", back.ClassWeight)
}

func TestSaveDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	c.Epochs = 3
	require.NoError(t, Save(c, ""))
	_, err = os.Stat(filepath.Join(home, ".tabula", "config.yaml"))
	require.NoError(t, err)

	back, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, back.Epochs)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TABULA_EPOCHS", "7")
	t.Setenv("TABULA_LOG_FORMAT", "json")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, c.Epochs)
	assert.Equal(t, "json", c.LogFormat)
}

func TestLoadBrokenFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epochs: [unclosed\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSetValidation(t *testing.T) {
	c := &Global{}
	tests := []struct {
		key, val string
		ok       bool
	}{
		{"split", "0.75", true},
		{"split", "80", false},
		{"dropout", "1", false},
		{"learning_rate", "0", false},
		{"batch_size", "16", true},
		{"epochs", "x", false},
		{"log_format", "xml", false},
		{"class_weight", "balanced", false},
		{"nope", "1", false},
	}
	for _, tt := range tests {
		err := c.Set(tt.key, tt.val)
		if tt.ok {
			assert.NoError(t, err, "%s=%s", tt.key, tt.val)
		} else {
			assert.Error(t, err, "%s=%s", tt.key, tt.val)
		}
	}
	assert.Equal(t, 0.75, c.Split)
	assert.Equal(t, 16, c.BatchSize)

	for _, k := range Keys {
		_, err := c.Get(k)
		assert.NoError(t, err, k)
	}
	_, err := c.Get("nope")
	assert.Error(t, err)
}

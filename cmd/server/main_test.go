package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"migrate"},
		{"events"},
		{"user", "create"},
		{"user", "list"},
		{"user", "passwd"},
		{"user", "delete"},
		{"volume", "add"},
		{"volume", "list"},
		{"volume", "index"},
		{"volume", "grant"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	f := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, f)
	assert.Equal(t, "./configs/config.yaml", f.DefValue)
}

func TestArgValidation(t *testing.T) {
	assert.Error(t, volumeAddCmd.Args(volumeAddCmd, []string{"only-name"}))
	assert.NoError(t, volumeAddCmd.Args(volumeAddCmd, []string{"music", "/srv/music"}))
	assert.Error(t, volumeGrantCmd.Args(volumeGrantCmd, []string{"v", "1"}))
}

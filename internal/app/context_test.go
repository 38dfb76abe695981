package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escra/internal/config"
	"escra/internal/engine/auth"
)

func TestOpenUsesDefaultsWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), Options{Workspace: dir})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Actor()
	assert.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, ".escra", "escra.db"))

	counts, err := rt.Engine.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts["contracts"])
}

func TestOpenUserOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("John Smith")), 0o644))

	rt, err := Open(context.Background(), Options{Workspace: dir})
	require.NoError(t, err)
	actor, err := rt.Actor()
	require.NoError(t, err)
	assert.Equal(t, "John Smith", actor)
	require.NoError(t, rt.Close())

	rt, err = Open(context.Background(), Options{Workspace: dir, User: "Sarah Johnson"})
	require.NoError(t, err)
	defer rt.Close()
	actor, _ = rt.Actor()
	assert.Equal(t, "Sarah Johnson", actor)

	rt.Config.User.Role = "editor"
	caller, err := rt.Caller()
	require.NoError(t, err)
	assert.Equal(t, auth.Actor{ID: "Sarah Johnson", Role: "editor"}, caller)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("views:\n  signatures:\n    tabs:\n      x: [Lost]\n"), 0o644))
	_, err := Open(context.Background(), Options{Workspace: dir})
	assert.ErrorContains(t, err, "load config")
}

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/privacy"
)

func TestViewCache_NilClientIsDisabled(t *testing.T) {
	cache := NewViewCache(nil, zap.NewNop())
	ctx := context.Background()

	assert.False(t, cache.Enabled())

	// Every operation is a safe no-op.
	assert.Nil(t, cache.Get(ctx, "ada", "notes", "id", privacy.LevelPublicFull, "fp"))
	cache.Set(ctx, "ada", "notes", "id", privacy.LevelPublicFull, "fp", &privacy.FilteredEntry{})
	cache.Invalidate(ctx, "ada", "notes")
}

func TestViewKey_DisambiguatesEveryDimension(t *testing.T) {
	base := viewKey("ada", "notes", "id1", privacy.LevelPublicFull, "fp1")

	assert.NotEqual(t, base, viewKey("grace", "notes", "id1", privacy.LevelPublicFull, "fp1"))
	assert.NotEqual(t, base, viewKey("ada", "projects", "id1", privacy.LevelPublicFull, "fp1"))
	assert.NotEqual(t, base, viewKey("ada", "notes", "id2", privacy.LevelPublicFull, "fp1"))
	assert.NotEqual(t, base, viewKey("ada", "notes", "id1", privacy.LevelAISafe, "fp1"))
	assert.NotEqual(t, base, viewKey("ada", "notes", "id1", privacy.LevelPublicFull, "fp2"))
}

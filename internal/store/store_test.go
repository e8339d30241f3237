package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the behaviour every Store must share.
func exercise(t *testing.T, s Store) {
	ctx := context.Background()
	id := uuid.NewString()

	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, s.SaveCode(ctx, id, "x"), ErrRoomNotFound)

	created, err := s.Create(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, created.ID)
	assert.Empty(t, created.Code)

	_, err = s.Create(ctx, id)
	assert.Error(t, err, "duplicate id")

	require.NoError(t, s.SaveCode(ctx, id, "print(1)"))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", got.Code)
	assert.False(t, got.UpdatedAt.Before(created.UpdatedAt))

	require.NoError(t, s.SaveCode(ctx, id, ""))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Code)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("COLLABTEXT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COLLABTEXT_TEST_DATABASE_URL not set")
	}
	p, err := OpenPostgres(context.Background(), url)
	require.NoError(t, err)
	defer p.Close()
	exercise(t, p)
}

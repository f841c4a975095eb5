package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

func TestCreateEnforcesSingletonOwner(t *testing.T) {
	repo := NewEntityRepository()
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	first := domain.NewEntity("owner-1", "Platform Owner", domain.EntityTypeOwner, nil, now)
	require.NoError(t, repo.Create(ctx, first))

	second := domain.NewEntity("owner-2", "Usurper", domain.EntityTypeOwner, nil, now)
	err := repo.Create(ctx, second)
	assert.True(t, apperr.HasCode(err, apperr.ErrCodeOwnerExists), "got: %v", err)

	owners, err := repo.FindByType(ctx, domain.EntityTypeOwner)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "owner-1", owners[0].ID)
}

func TestCreateRejectsDuplicateEntityID(t *testing.T) {
	repo := NewEntityRepository()
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	ownerID := "owner-1"
	require.NoError(t, repo.Create(ctx, domain.NewEntity(ownerID, "Platform Owner", domain.EntityTypeOwner, nil, now)))
	err := repo.Create(ctx, domain.NewEntity(ownerID, "Clone", domain.EntityTypeDeveloper, &ownerID, now))
	assert.True(t, apperr.HasCode(err, apperr.ErrCodeInvalidRequest))
}

func TestFindByIDReturnsCopies(t *testing.T) {
	repo := NewEntityRepository()
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, domain.NewEntity("owner-1", "Platform Owner", domain.EntityTypeOwner, nil, now)))

	got, err := repo.FindByID(ctx, "owner-1")
	require.NoError(t, err)
	got.Name = "Renamed"

	again, err := repo.FindByID(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "Platform Owner", again.Name)
}

package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestAccountService_Create(t *testing.T) {
	repo := newMockAccountRepo()
	svc := NewAccountService(repo, zap.NewNop())
	ctx := context.Background()

	account := &models.Account{CompanyName: "  Acme Co ", Country: "US"}
	require.NoError(t, svc.Create(ctx, account))
	assert.NotEqual(t, uuid.Nil, account.ID)
	assert.Equal(t, "Acme Co", account.CompanyName)

	err := svc.Create(ctx, &models.Account{CompanyName: "Acme Co", Country: "US"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	err = svc.Create(ctx, &models.Account{CompanyName: "Globex"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = svc.Create(ctx, &models.Account{CompanyName: " ", Country: "US"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAccountService_Update(t *testing.T) {
	account := &models.Account{ID: uuid.New(), CompanyName: "Acme Co", Country: "US", Industry: "Tools"}
	repo := newMockAccountRepo(account)
	svc := NewAccountService(repo, zap.NewNop())
	ctx := context.Background()

	updated, err := svc.Update(ctx, account.ID, AccountUpdate{Website: strPtr(" acme.example "), Industry: strPtr("Hardware")})
	require.NoError(t, err)
	assert.Equal(t, "acme.example", updated.Website)
	assert.Equal(t, "Hardware", updated.Industry)
	assert.Equal(t, "Acme Co", updated.CompanyName)

	stored, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hardware", stored.Industry)

	_, err = svc.Update(ctx, account.ID, AccountUpdate{Country: strPtr("")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Update(ctx, uuid.New(), AccountUpdate{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAccountService_ListAndDelete(t *testing.T) {
	acme := &models.Account{ID: uuid.New(), CompanyName: "Acme Co", Country: "US"}
	globex := &models.Account{ID: uuid.New(), CompanyName: "Globex", Country: "US"}
	svc := NewAccountService(newMockAccountRepo(acme, globex), zap.NewNop())
	ctx := context.Background()

	found, err := svc.List(ctx, models.AccountFilter{Search: "acme"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, acme.ID, found[0].ID)

	require.NoError(t, svc.Delete(ctx, acme.ID))
	_, err = svc.Get(ctx, acme.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, acme.ID), apperrors.ErrNotFound)
}

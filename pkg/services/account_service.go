package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

// AccountService manages accounts.
type AccountService interface {
	Create(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
	List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
	Update(ctx context.Context, id uuid.UUID, update AccountUpdate) (*models.Account, error)
	// Delete removes the account and everything that belongs to it.
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountUpdate carries optional field changes. Nil fields are left unchanged.
type AccountUpdate struct {
	CompanyName *string `json:"company_name,omitempty"`
	Industry    *string `json:"industry,omitempty"`
	CompanySize *string `json:"company_size,omitempty"`
	Website     *string `json:"website,omitempty"`
	Country     *string `json:"country,omitempty"`
	Description *string `json:"description,omitempty"`
}

type accountService struct {
	accountRepo repositories.AccountRepository
	logger      *zap.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(accountRepo repositories.AccountRepository, logger *zap.Logger) AccountService {
	return &accountService{
		accountRepo: accountRepo,
		logger:      logger.Named("account-service"),
	}
}

var _ AccountService = (*accountService)(nil)

func (s *accountService) Create(ctx context.Context, account *models.Account) error {
	account.CompanyName = strings.TrimSpace(account.CompanyName)
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("Account created",
		zap.String("account_id", account.ID.String()),
		zap.String("company_name", account.CompanyName))
	return nil
}

func (s *accountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

func (s *accountService) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	return s.accountRepo.List(ctx, filter)
}

func (s *accountService) Update(ctx context.Context, id uuid.UUID, update AccountUpdate) (*models.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&account.CompanyName, update.CompanyName)
	apply(&account.Industry, update.Industry)
	apply(&account.CompanySize, update.CompanySize)
	apply(&account.Website, update.Website)
	apply(&account.Country, update.Country)
	apply(&account.Description, update.Description)

	if err := account.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return account, nil
}

func (s *accountService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.accountRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Account deleted", zap.String("account_id", id.String()))
	return nil
}

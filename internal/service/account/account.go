package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
)

const (
	referralCodeLength = 10
	codeAttempts       = 3
)

type AccountService struct {
	storage repository.Storage

	// Referral code generator
	newCode func() string
}

func NewService(storage repository.Storage) (*AccountService, error) {
	generator, err := nanoid.Standard(referralCodeLength)
	if err != nil {
		return nil, fmt.Errorf("can't create referral code generator: %w", err)
	}

	return &AccountService{
		storage: storage,
		newCode: generator,
	}, nil
}

// CreateAccount registers account with fresh referral code
// If referralCode is not empty the account is linked to its owner
func (s *AccountService) CreateAccount(ctx context.Context, username string, referralCode string) (models.Account, error) {
	var account models.Account

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var referredBy *uuid.UUID
		if referralCode != "" {
			referrer, err := tx.Account().GetAccountByReferralCode(ctx, referralCode)
			if err != nil {
				return err
			}
			referredBy = &referrer.ID
		}

		code, err := s.uniqueCode(ctx, tx)
		if err != nil {
			return err
		}

		account, err = tx.Account().CreateAccount(ctx, models.Account{
			Username:     username,
			ReferralCode: code,
			ReferredBy:   referredBy,
		})
		if err != nil {
			return err
		}

		if referredBy != nil {
			if _, err := tx.Referral().CreateReferral(ctx, *referredBy, account.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return models.Account{}, fmt.Errorf("can't create account. Err: %w", err)
	}

	return account, nil
}

func (s *AccountService) uniqueCode(ctx context.Context, tx repository.Storage) (string, error) {
	for range codeAttempts {
		code := s.newCode()

		_, err := tx.Account().GetAccountByReferralCode(ctx, code)
		switch {
		case errors.Is(err, apperrors.ErrReferralCodeNotFound):
			return code, nil
		case err != nil:
			return "", err
		}
	}

	return "", fmt.Errorf("can't generate unique referral code in %d attempts", codeAttempts)
}

func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetAccount(ctx, accountID, false)
}

// DeleteAccount removes account with its commissions and cashouts. Referred accounts stay
func (s *AccountService) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	return s.storage.Account().DeleteAccount(ctx, accountID)
}

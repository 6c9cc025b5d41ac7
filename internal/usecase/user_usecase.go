package usecase

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/pkg/errors"
)

type UserUseCase struct {
	userRepo repository.UserRepository
	clock    clockwork.Clock
}

func NewUserUseCase(userRepo repository.UserRepository, clock clockwork.Clock) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
		clock:    clock,
	}
}

type RegisterInput struct {
	Email       string
	DisplayName string
	Role        string
	HourlyRate  float64
	Currency    string
}

// UpdateProfileInput leaves fields that are nil untouched.
type UpdateProfileInput struct {
	DisplayName *string
	AvatarURL   *string
	HourlyRate  *float64
	Currency    *string
}

// Register creates the profile of an already authenticated user. Admins are
// provisioned out of band and cannot register themselves.
func (uc *UserUseCase) Register(ctx context.Context, userID string, input RegisterInput) (*entity.User, error) {
	if input.Role != entity.UserRoleTraveller && input.Role != entity.UserRoleGuide {
		return nil, errors.Validation("Role must be traveller or guide", nil)
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return nil, errors.Validation("Display name is required", nil)
	}
	if input.HourlyRate < 0 || (input.Role != entity.UserRoleGuide && input.HourlyRate != 0) {
		return nil, errors.Validation("Only guides carry a non-negative hourly rate", nil)
	}

	if _, err := uc.userRepo.GetByID(ctx, userID); err == nil {
		return nil, errors.InvalidState("Profile already exists")
	} else if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	now := uc.clock.Now()
	user := &entity.User{
		ID:          userID,
		Email:       input.Email,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        input.Role,
		HourlyRate:  input.HourlyRate,
		Currency:    input.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (uc *UserUseCase) GetUserProfile(ctx context.Context, userID string) (*entity.User, error) {
	return uc.userRepo.GetByID(ctx, userID)
}

// GetPublicProfile is what a counterpart sees: no email.
func (uc *UserUseCase) GetPublicProfile(ctx context.Context, userID string) (*entity.User, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Email = ""
	return user, nil
}

// UpdateProfile changes profile fields. A new hourly rate only applies to
// quotes created afterwards; existing quotes keep the rate they were priced at.
func (uc *UserUseCase) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*entity.User, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, errors.Validation("Display name cannot be blank", nil)
		}
		user.DisplayName = name
	}
	if input.AvatarURL != nil {
		user.AvatarURL = *input.AvatarURL
	}
	if input.HourlyRate != nil || input.Currency != nil {
		if user.Role != entity.UserRoleGuide {
			return nil, errors.Validation("Only guides have an hourly rate", nil)
		}
		if input.HourlyRate != nil {
			if *input.HourlyRate <= 0 {
				return nil, errors.Validation("Hourly rate must be positive", nil)
			}
			user.HourlyRate = *input.HourlyRate
		}
		if input.Currency != nil {
			user.Currency = *input.Currency
		}
	}

	user.UpdatedAt = uc.clock.Now()
	if err := uc.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

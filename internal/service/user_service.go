package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/crypto"
	"whalecycle/backend/pkg/logger"

	"github.com/google/uuid"
)

// UserService handles user management operations
type UserService struct {
	userRepo   *repository.UserRepository
	cycles     *repository.CycleRepository
	sessionTTL time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// NewUserService creates a new user service
func NewUserService(userRepo *repository.UserRepository, cycles *repository.CycleRepository, sessionTTL time.Duration, log *logger.Logger) *UserService {
	return &UserService{
		userRepo:   userRepo,
		cycles:     cycles,
		sessionTTL: sessionTTL,
		log:        log,
		now:        time.Now,
	}
}

// GetProfile gets the current user's profile with wallet totals
func (s *UserService) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	account, err := s.cycles.GetAccount(ctx, userID)
	if err != nil {
		return nil, s.fail("get account", userID, err)
	}

	return &model.UserProfile{User: user.ToSafeUser(), Account: account}, nil
}

// ChangePassword changes the current user's password and drops stored refresh sessions
func (s *UserService) ChangePassword(ctx context.Context, userID string, oldPassword, newPassword string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	// Verify old password
	if !crypto.CheckPassword(oldPassword, user.PasswordHash) {
		return util.ErrBadRequest("Invalid old password")
	}

	return s.setPassword(ctx, user, newPassword)
}

// ListUsers lists all users with their wallet balance (admin only)
func (s *UserService) ListUsers(ctx context.Context) ([]*model.ProfileSummary, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, s.fail("list users", "", err)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].TelegramUsername < users[j].TelegramUsername })

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	accounts, err := s.cycles.GetAccounts(ctx, ids)
	if err != nil {
		return nil, s.fail("get accounts", "", err)
	}

	out := make([]*model.ProfileSummary, len(users))
	for i, u := range users {
		out[i] = &model.ProfileSummary{
			UserID:           u.ID,
			TelegramUsername: u.TelegramUsername,
		}
		if acc, ok := accounts[u.ID]; ok {
			out[i].WalletBalance = acc.WalletBalance
		}
	}
	return out, nil
}

// CreateUser creates a user and its wallet (admin only)
func (s *UserService) CreateUser(ctx context.Context, req *model.CreateUserRequest) (*model.UserProfile, error) {
	username := strings.TrimPrefix(strings.TrimSpace(req.TelegramUsername), "@")
	if username == "" {
		return nil, util.ErrValidation("telegram_username is required")
	}
	if !crypto.ValidatePasswordStrength(req.Password) {
		return nil, util.ErrValidation("Password must be 8-72 characters")
	}
	if req.InitialBalance.IsNegative() {
		return nil, util.ErrValidation("initial_balance must not be negative")
	}
	if !req.InitialBalance.Equal(util.RoundMoney(req.InitialBalance)) {
		return nil, util.ErrValidation("initial_balance must have at most 2 decimal places")
	}

	role := req.Role
	if role == "" {
		role = model.RoleUser
	}

	passwordHash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, s.fail("hash password", "", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:               uuid.New().String(),
		TelegramUsername: username,
		TelegramID:       req.TelegramID,
		PasswordHash:     passwordHash,
		Role:             role,
		Status:           model.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, util.ErrConflict("Telegram username already exists")
		}
		return nil, s.fail("create user", user.ID, err)
	}

	account := model.NewAccount(user.ID)
	account.WalletBalance = req.InitialBalance
	account.TotalDeposits = req.InitialBalance
	account.UpdatedAt = now
	if err := s.cycles.SaveAccount(ctx, account); err != nil {
		return nil, s.fail("create account", user.ID, err)
	}

	s.log.WithFields(map[string]interface{}{"user_id": user.ID, "role": role}).Info("User created")
	return &model.UserProfile{User: user.ToSafeUser(), Account: account}, nil
}

// UpdateUser updates role, status or telegram chat of a user (admin only).
// Deactivating a user also revokes their tokens.
func (s *UserService) UpdateUser(ctx context.Context, req *model.UpdateUserRequest) (*model.SafeUser, error) {
	user, err := s.getUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.Role != "" {
		user.Role = req.Role
	}
	if req.TelegramID != nil {
		user.TelegramID = *req.TelegramID
	}
	deactivated := req.Status == model.StatusInactive && user.IsActive()
	if req.Status != "" {
		user.Status = req.Status
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, s.fail("update user", user.ID, err)
	}

	if deactivated {
		if err := s.revoke(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	return user.ToSafeUser(), nil
}

// ResetPassword resets a user's password and forces a new login (admin only)
func (s *UserService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}
	return s.revoke(ctx, userID)
}

func (s *UserService) setPassword(ctx context.Context, user *model.User, newPassword string) error {
	if !crypto.ValidatePasswordStrength(newPassword) {
		return util.ErrValidation("Password must be 8-72 characters")
	}

	passwordHash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return s.fail("hash password", user.ID, err)
	}

	user.PasswordHash = passwordHash
	user.UpdatedAt = s.now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return s.fail("update password", user.ID, err)
	}

	if err := s.userRepo.DeleteUserSessions(ctx, user.ID); err != nil {
		s.log.WithField("user_id", user.ID).Warnf("Failed to delete sessions after password change: %v", err)
	}
	return nil
}

func (s *UserService) revoke(ctx context.Context, userID string) error {
	if err := s.userRepo.RevokeSessions(ctx, userID, s.now().UTC(), s.sessionTTL); err != nil {
		return s.fail("revoke sessions", userID, err)
	}
	if err := s.userRepo.DeleteUserSessions(ctx, userID); err != nil {
		return s.fail("delete sessions", userID, err)
	}
	return nil
}

func (s *UserService) getUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, util.ErrNotFound("User not found")
		}
		return nil, s.fail("get user", userID, err)
	}
	return user, nil
}

func (s *UserService) fail(op, userID string, err error) error {
	s.log.WithFields(map[string]interface{}{"op": op, "user_id": userID}).Error("User operation failed", err)
	return util.ErrInternalServer("Internal server error")
}

// Package repository provides data access for the application and interacts with Redis.
package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/redis"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameTaken    = errors.New("telegram username already exists")
	ErrSessionNotFound  = errors.New("session not found")
	ErrCycleNotFound    = errors.New("cycle not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// UserRepository handles user data operations
type UserRepository struct {
	redis *redis.Client
}

// NewUserRepository creates a new user repository
func NewUserRepository(redisClient *redis.Client) *UserRepository {
	return &UserRepository{
		redis: redisClient,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	// Claim the username index first so two creates cannot share a name
	usernameKey := redis.UserByTelegramKey(user.TelegramUsername)
	ok, err := r.redis.SetNX(ctx, usernameKey, user.ID, 0)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUsernameTaken
	}

	userKey := redis.UserKey(user.ID)
	if err := r.redis.SetJSON(ctx, userKey, user, 0); err != nil {
		_ = r.redis.Del(ctx, usernameKey)
		return err
	}

	return r.redis.SAdd(ctx, redis.UsersIndexKey(), user.ID)
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	userKey := redis.UserKey(userID)

	var user model.User
	if err := r.redis.GetJSON(ctx, userKey, &user); err != nil {
		if err == redis.Nil {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}

// GetByTelegramUsername gets a user by Telegram username (case-insensitive, "@" optional)
func (r *UserRepository) GetByTelegramUsername(ctx context.Context, username string) (*model.User, error) {
	userID, err := r.redis.Get(ctx, redis.UserByTelegramKey(username))
	if err != nil {
		if err == redis.Nil {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return r.GetByID(ctx, userID)
}

// GetMany loads several users at once. Unknown IDs are skipped.
func (r *UserRepository) GetMany(ctx context.Context, userIDs []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = redis.UserKey(id)
	}

	var users []*model.User
	if err := mgetJSON(ctx, r.redis, keys, func() interface{} {
		u := &model.User{}
		users = append(users, u)
		return u
	}); err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	userKey := redis.UserKey(user.ID)
	return r.redis.SetJSON(ctx, userKey, user, 0)
}

// UpdateLastLogin updates user's last login time
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	user.LastLoginAt = &now

	return r.Update(ctx, user)
}

// List lists all users (admin only)
func (r *UserRepository) List(ctx context.Context) ([]*model.User, error) {
	ids, err := r.redis.SMembers(ctx, redis.UsersIndexKey())
	if err != nil {
		return nil, err
	}

	byID, err := r.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	users := make([]*model.User, 0, len(byID))
	for _, u := range byID {
		users = append(users, u)
	}
	return users, nil
}

// CreateSession creates a new session
func (r *UserRepository) CreateSession(ctx context.Context, session *model.Session) error {
	sessionKey := redis.SessionKey(session.ID)

	// Store session
	if err := r.redis.SetJSON(ctx, sessionKey, session, time.Until(session.ExpiresAt)); err != nil {
		return err
	}

	// Add to user's sessions
	userSessionsKey := redis.UserSessionsKey(session.UserID)
	return r.redis.SAdd(ctx, userSessionsKey, session.ID)
}

// GetSession gets a session by ID
func (r *UserRepository) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	sessionKey := redis.SessionKey(sessionID)

	var session model.Session
	if err := r.redis.GetJSON(ctx, sessionKey, &session); err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &session, nil
}

// DeleteSession deletes a session
func (r *UserRepository) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := r.redis.Del(ctx, redis.SessionKey(sessionID)); err != nil {
		return err
	}

	return r.redis.SRem(ctx, redis.UserSessionsKey(session.UserID), sessionID)
}

// DeleteUserSessions deletes all sessions for a user
func (r *UserRepository) DeleteUserSessions(ctx context.Context, userID string) error {
	userSessionsKey := redis.UserSessionsKey(userID)

	sessionIDs, err := r.redis.SMembers(ctx, userSessionsKey)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, sessionID := range sessionIDs {
		keys = append(keys, redis.SessionKey(sessionID))
	}
	keys = append(keys, userSessionsKey)

	return r.redis.Del(ctx, keys...)
}

// BlacklistToken adds a token ID to the blacklist until it would have expired anyway
func (r *UserRepository) BlacklistToken(ctx context.Context, tokenID string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	return r.redis.Set(ctx, redis.TokenBlacklistKey(tokenID), "blacklisted", expiration)
}

// IsTokenBlacklisted checks if a token ID is blacklisted
func (r *UserRepository) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	return r.redis.Exists(ctx, redis.TokenBlacklistKey(tokenID))
}

// RevokeSessions marks every token of userID issued before at as invalid.
// The marker outlives the longest token so it can expire on its own.
func (r *UserRepository) RevokeSessions(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	return r.redis.Set(ctx, redis.SessionRevokedKey(userID), strconv.FormatInt(at.UnixMilli(), 10), ttl)
}

// RevokedBefore returns the revocation marker of userID, or the zero time when none is set
func (r *UserRepository) RevokedBefore(ctx context.Context, userID string) (time.Time, error) {
	val, err := r.redis.Get(ctx, redis.SessionRevokedKey(userID))
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

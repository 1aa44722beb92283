package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/logger"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AdminService handles privileged operations. Every mutation is audited.
type AdminService struct {
	cycles *repository.CycleRepository
	users  *repository.UserRepository
	audit  *repository.AuditRepository
	engine *CycleService
	events CycleEventPublisher
	// sessionTTL bounds how long a revocation marker must outlive issued tokens
	sessionTTL time.Duration
	log        *logger.Logger
	now        func() time.Time
}

func NewAdminService(
	cycles *repository.CycleRepository,
	users *repository.UserRepository,
	audit *repository.AuditRepository,
	engine *CycleService,
	events CycleEventPublisher,
	sessionTTL time.Duration,
	log *logger.Logger,
) *AdminService {
	return &AdminService{
		cycles:     cycles,
		users:      users,
		audit:      audit,
		engine:     engine,
		events:     events,
		sessionTTL: sessionTTL,
		log:        log,
		now:        time.Now,
	}
}

// CompleteCycle matures a cycle on behalf of adminID
func (s *AdminService) CompleteCycle(ctx context.Context, adminID, cycleID string) (*model.CompletionResult, error) {
	return s.engine.CompleteCycle(ctx, adminID, cycleID)
}

// SetPenalty upserts the penalty flag of targetUserID
func (s *AdminService) SetPenalty(ctx context.Context, adminID, targetUserID string, enable bool) error {
	if _, err := s.lookupUser(ctx, targetUserID); err != nil {
		return err
	}

	action := model.AuditActionDisablePenalty
	if enable {
		action = model.AuditActionEnablePenalty
	}

	var changed bool
	err := s.cycles.WithUserTx(ctx, targetUserID, func(tx *repository.UserTx) error {
		now := s.now().UTC()
		changed = tx.Progress.IsPenaltyMode != enable

		tx.AppendAudit(&model.AuditEntry{
			ID:         uuid.New().String(),
			AdminID:    adminID,
			ActionType: action,
			TargetType: model.AuditTargetUser,
			TargetID:   targetUserID,
			Details: map[string]interface{}{
				"previous": tx.Progress.IsPenaltyMode,
			},
			CreatedAt: now,
		})

		tx.Progress.IsPenaltyMode = enable
		tx.Progress.LastPenaltyCheck = &now
		tx.SaveProgress()
		return nil
	})
	if err != nil {
		return s.engine.txError("set penalty", targetUserID, "", err)
	}

	s.log.WithFields(map[string]interface{}{
		"admin_id": adminID,
		"user_id":  targetUserID,
		"penalty":  enable,
	}).Info("Penalty mode updated")

	if changed && s.events != nil {
		s.events.PublishCycleEvent(ctx, model.CycleEvent{
			Type:        model.MessageTypePenaltyChanged,
			UserID:      targetUserID,
			PenaltyMode: &enable,
			ActorID:     adminID,
			OccurredAt:  s.now().UTC(),
		})
	}
	return nil
}

// GetAllCycles lists cycles newest first with owner profiles. status is one of
// active, completed, broken, or empty/"all" for every cycle.
func (s *AdminService) GetAllCycles(ctx context.Context, status string) ([]*model.AdminCycle, *model.AdminCycleStats, error) {
	filter := model.CycleStatus(status)
	if status == "all" {
		filter = ""
	}
	switch filter {
	case "", model.CycleStatusActive, model.CycleStatusCompleted, model.CycleStatusBroken:
	default:
		return nil, nil, util.ErrValidation("status must be one of active, completed, broken, all")
	}

	cycles, err := s.cycles.ListAll(ctx, filter)
	if err != nil {
		return nil, nil, s.engine.internal("list cycles", "", "", err)
	}

	seen := make(map[string]bool)
	userIDs := make([]string, 0)
	for _, c := range cycles {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			userIDs = append(userIDs, c.UserID)
		}
	}

	users, err := s.users.GetMany(ctx, userIDs)
	if err != nil {
		return nil, nil, s.engine.internal("load profiles", "", "", err)
	}
	accounts, err := s.cycles.GetAccounts(ctx, userIDs)
	if err != nil {
		return nil, nil, s.engine.internal("load accounts", "", "", err)
	}

	stats := &model.AdminCycleStats{
		TotalInvested: decimal.Zero,
		TotalProfit:   decimal.Zero,
	}
	rows := make([]*model.AdminCycle, 0, len(cycles))
	for _, c := range cycles {
		profile := model.ProfileSummary{UserID: c.UserID, WalletBalance: decimal.Zero}
		if u, ok := users[c.UserID]; ok {
			profile.TelegramUsername = u.TelegramUsername
		}
		if a, ok := accounts[c.UserID]; ok {
			profile.WalletBalance = a.WalletBalance
		}
		rows = append(rows, &model.AdminCycle{Cycle: c, Profile: profile})

		stats.Total++
		switch c.Status {
		case model.CycleStatusActive:
			stats.Active++
		case model.CycleStatusCompleted:
			stats.Completed++
		case model.CycleStatusBroken:
			stats.Broken++
		}
		stats.TotalInvested = stats.TotalInvested.Add(c.TotalInvested())
		stats.TotalProfit = stats.TotalProfit.Add(c.CurrentProfit)
	}

	return rows, stats, nil
}

// LogoutUser invalidates every token userID holds and drops the stored sessions
func (s *AdminService) LogoutUser(ctx context.Context, adminID, userID string) error {
	if _, err := s.lookupUser(ctx, userID); err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.users.RevokeSessions(ctx, userID, now, s.sessionTTL); err != nil {
		return s.engine.internal("revoke sessions", userID, "", err)
	}
	if err := s.users.DeleteUserSessions(ctx, userID); err != nil {
		return s.engine.internal("delete sessions", userID, "", err)
	}

	entry := &model.AuditEntry{
		ID:         uuid.New().String(),
		AdminID:    adminID,
		ActionType: model.AuditActionLogoutUser,
		TargetType: model.AuditTargetUser,
		TargetID:   userID,
		CreatedAt:  now,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		// sessions are already revoked; losing the entry must not undo that
		s.log.WithFields(map[string]interface{}{"admin_id": adminID, "user_id": userID}).Error("Failed to audit logout", err)
	}

	s.log.WithFields(map[string]interface{}{"admin_id": adminID, "user_id": userID}).Info("User sessions revoked")
	return nil
}

// ListAuditLog returns the newest audit entries
func (s *AdminService) ListAuditLog(ctx context.Context, limit int64) ([]*model.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	entries, err := s.audit.ListRecent(ctx, limit)
	if err != nil {
		return nil, s.engine.internal("list audit log", "", "", err)
	}
	return entries, nil
}

func (s *AdminService) lookupUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, util.ErrNotFound("User not found")
		}
		return nil, s.engine.internal("load user", userID, "", err)
	}
	return user, nil
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/service/cycle"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"
)

// CycleEventPublisher receives every committed cycle transition
type CycleEventPublisher interface {
	PublishCycleEvent(ctx context.Context, ev model.CycleEvent)
}

// CycleService is the investment cycle engine
type CycleService struct {
	repo   *repository.CycleRepository
	rules  cycle.Rules
	events CycleEventPublisher
	log    *logger.Logger
	now    func() time.Time
}

func NewCycleService(repo *repository.CycleRepository, rules cycle.Rules, events CycleEventPublisher, log *logger.Logger) *CycleService {
	return &CycleService{
		repo:   repo,
		rules:  rules,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// Rules exposes the rules the engine runs with
func (s *CycleService) Rules() cycle.Rules {
	return s.rules
}

// StartCycle opens a cycle on a free chance slot and debits the wallet
func (s *CycleService) StartCycle(ctx context.Context, userID string, req *model.StartCycleRequest) (string, error) {
	if !cycle.ValidCycleType(req.CycleType) {
		return "", util.ErrValidation(cycle.ErrInvalidCycleType.Error())
	}
	if !cycle.ValidChance(req.ChanceNumber) {
		return "", util.ErrValidation(cycle.ErrInvalidChance.Error())
	}
	if err := s.rules.ValidateAmount(req.Amount); err != nil {
		return "", util.ErrValidation(err.Error())
	}

	var created *model.Cycle
	var balance decimal.Decimal
	err := s.repo.WithUserTx(ctx, userID, func(tx *repository.UserTx) error {
		created = nil

		if !cycle.Unlocked(tx.Progress.CompletedCycles, req.CycleType) {
			return util.ErrCycleLocked("Cycle type is locked, complete the previous cycle types first")
		}
		if s.rules.RequireSecondChance && req.ChanceNumber == 2 && !tx.Progress.SecondChanceUnlocked {
			return util.ErrCycleLocked("Second chance is not unlocked")
		}
		if _, busy := tx.ActiveCycleID(req.ChanceNumber); busy {
			return util.ErrCycleAlreadyActive("An active cycle already exists for this chance")
		}
		if req.Amount.GreaterThan(tx.Account.WalletBalance) {
			return util.ErrInsufficientBalance("Insufficient wallet balance")
		}

		now := s.now().UTC()
		c := &model.Cycle{
			ID:                    uuid.New().String(),
			UserID:                userID,
			CycleType:             req.CycleType,
			ChanceNumber:          req.ChanceNumber,
			InvestmentAmount:      req.Amount,
			AdditionalInvestments: []model.AdditionalInvestment{},
			StartDate:             now,
			EndDate:               now.Add(s.rules.Duration(req.CycleType)),
			CurrentProfit:         decimal.Zero,
			Status:                model.CycleStatusActive,
			CreatedAt:             now,
		}

		tx.Account.WalletBalance = tx.Account.WalletBalance.Sub(req.Amount)
		tx.Account.TotalInvestment = tx.Account.TotalInvestment.Add(req.Amount)
		tx.SaveAccount()
		tx.SaveCycle(c)

		created = c
		balance = tx.Account.WalletBalance
		return nil
	})
	if err != nil {
		return "", s.txError("start cycle", userID, "", err)
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":  userID,
		"cycle_id": created.ID,
		"type":     created.CycleType,
		"chance":   created.ChanceNumber,
	}).Info("Cycle started")

	s.publish(ctx, model.CycleEvent{
		Type:          model.MessageTypeCycleStarted,
		UserID:        userID,
		CycleID:       created.ID,
		CycleType:     created.CycleType,
		ChanceNumber:  created.ChanceNumber,
		Amount:        util.MoneyPtr(req.Amount),
		WalletBalance: util.MoneyPtr(balance),
	})

	return created.ID, nil
}

// AddInvestment tops up an active cycle from the wallet
func (s *CycleService) AddInvestment(ctx context.Context, userID string, req *model.AddInvestmentRequest) (*model.Cycle, error) {
	if err := s.rules.ValidateAmount(req.Amount); err != nil {
		return nil, util.ErrValidation(err.Error())
	}

	var updated *model.Cycle
	var balance decimal.Decimal
	err := s.repo.WithUserTx(ctx, userID, func(tx *repository.UserTx) error {
		c, err := tx.Cycle(req.CycleID)
		if err != nil {
			return err
		}
		if !c.IsActive() {
			return repository.ErrCycleNotFound
		}
		now := s.now().UTC()
		if !now.Before(c.EndDate) {
			return util.ErrValidation("Cycle has reached its end date and no longer accepts top-ups")
		}
		if c.TotalInvested().Add(req.Amount).GreaterThan(s.rules.MaxAmount) {
			return util.ErrValidation(cycle.ErrAmountTooLarge.Error())
		}
		if req.Amount.GreaterThan(tx.Account.WalletBalance) {
			return util.ErrInsufficientBalance("Insufficient wallet balance")
		}

		c.AdditionalInvestments = append(c.AdditionalInvestments, model.AdditionalInvestment{
			Amount:  req.Amount,
			AddedAt: now,
		})
		tx.Account.WalletBalance = tx.Account.WalletBalance.Sub(req.Amount)
		tx.Account.TotalInvestment = tx.Account.TotalInvestment.Add(req.Amount)
		tx.SaveAccount()
		tx.SaveCycle(c)

		updated = c
		balance = tx.Account.WalletBalance
		return nil
	})
	if err != nil {
		return nil, s.txError("add investment", userID, req.CycleID, err)
	}

	s.publish(ctx, model.CycleEvent{
		Type:          model.MessageTypeCycleToppedUp,
		UserID:        userID,
		CycleID:       updated.ID,
		CycleType:     updated.CycleType,
		ChanceNumber:  updated.ChanceNumber,
		Amount:        util.MoneyPtr(req.Amount),
		WalletBalance: util.MoneyPtr(balance),
	})

	return updated, nil
}

// CompleteCycle matures an active cycle. actorID is the admin, or model.ActorSystem
// for the maturity worker. Completing a cycle that is not active is a not-found no-op.
func (s *CycleService) CompleteCycle(ctx context.Context, actorID, cycleID string) (*model.CompletionResult, error) {
	existing, err := s.repo.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, s.txError("complete cycle", "", cycleID, err)
	}
	if !existing.IsActive() {
		return nil, util.ErrNotFound("Cycle not found or not active")
	}

	var result *model.CompletionResult
	var done *model.Cycle
	var balance decimal.Decimal
	err = s.repo.WithUserTx(ctx, existing.UserID, func(tx *repository.UserTx) error {
		c, err := tx.Cycle(cycleID)
		if err != nil {
			return err
		}
		if !c.IsActive() {
			return repository.ErrCycleNotFound
		}

		now := s.now().UTC()
		total := c.TotalInvested()
		final, profit := s.rules.CompletionPayout(c, tx.Progress.IsPenaltyMode)

		c.Status = model.CycleStatusCompleted
		c.CurrentProfit = profit
		c.FinalAmount = util.MoneyPtr(final)
		c.CompletedAt = &now
		tx.SaveCycle(c)

		tx.Account.WalletBalance = tx.Account.WalletBalance.Add(final)
		tx.Account.TotalProfit = tx.Account.TotalProfit.Add(profit)
		tx.SaveAccount()

		tx.Progress.CompletedCycles = cycle.AddCompleted(tx.Progress.CompletedCycles, c.CycleType)
		if tx.Progress.IsPenaltyMode {
			tx.Progress.IsPenaltyMode = false
			tx.Progress.LastPenaltyCheck = &now
		}
		tx.Progress.LastCompletionCheck = &now
		tx.SaveProgress()

		tx.AppendAudit(&model.AuditEntry{
			ID:         uuid.New().String(),
			AdminID:    actorID,
			ActionType: model.AuditActionCompleteCycle,
			TargetType: model.AuditTargetCycle,
			TargetID:   c.ID,
			Details: map[string]interface{}{
				"user_id":           c.UserID,
				"cycle_type":        c.CycleType,
				"investment_amount": total.StringFixed(2),
				"final_amount":      final.StringFixed(2),
				"profit":            profit.StringFixed(2),
			},
			CreatedAt: now,
		})

		result = &model.CompletionResult{FinalAmount: final, Profit: profit}
		done = c
		balance = tx.Account.WalletBalance
		return nil
	})
	if err != nil {
		return nil, s.txError("complete cycle", existing.UserID, cycleID, err)
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":  done.UserID,
		"cycle_id": done.ID,
		"actor":    actorID,
		"final":    result.FinalAmount.String(),
	}).Info("Cycle completed")

	s.publish(ctx, model.CycleEvent{
		Type:          model.MessageTypeCycleCompleted,
		UserID:        done.UserID,
		CycleID:       done.ID,
		CycleType:     done.CycleType,
		ChanceNumber:  done.ChanceNumber,
		Amount:        util.MoneyPtr(result.FinalAmount),
		Profit:        util.MoneyPtr(result.Profit),
		WalletBalance: util.MoneyPtr(balance),
		ActorID:       actorID,
	})

	return result, nil
}

// WithdrawEarly breaks an active cycle, paying principal plus accrual less tax
func (s *CycleService) WithdrawEarly(ctx context.Context, userID, cycleID string) (*model.WithdrawResult, error) {
	var result *model.WithdrawResult
	var broken *model.Cycle
	var balance decimal.Decimal
	var penaltyOn bool
	err := s.repo.WithUserTx(ctx, userID, func(tx *repository.UserTx) error {
		c, err := tx.Cycle(cycleID)
		if err != nil {
			return err
		}
		if !c.IsActive() {
			return repository.ErrCycleNotFound
		}

		now := s.now().UTC()
		w := s.rules.EarlyWithdrawal(c, tx.Progress.IsPenaltyMode, now)

		c.Status = model.CycleStatusBroken
		c.CurrentProfit = w.ProfitSoFar
		c.TaxApplied = util.MoneyPtr(w.Tax)
		c.WithdrawnAmount = util.MoneyPtr(w.Withdrawn)
		c.BrokenAt = &now
		tx.SaveCycle(c)

		tx.Account.WalletBalance = tx.Account.WalletBalance.Add(w.Withdrawn)
		tx.Account.TotalProfit = tx.Account.TotalProfit.Add(w.ProfitSoFar)
		tx.SaveAccount()

		res := &model.WithdrawResult{
			WithdrawnAmount: w.Withdrawn,
			TaxApplied:      w.Tax,
			ProfitSoFar:     w.ProfitSoFar,
		}
		if !s.rules.PenaltyExempt(c.CycleType) && !tx.Progress.IsPenaltyMode {
			tx.Progress.IsPenaltyMode = true
			tx.Progress.LastPenaltyCheck = &now
			res.PenaltyModeActivated = true
		}
		if c.ChanceNumber == 1 && !tx.Progress.SecondChanceUnlocked {
			tx.Progress.SecondChanceUnlocked = true
			res.NextChanceUnlocked = true
		}
		if res.PenaltyModeActivated || res.NextChanceUnlocked {
			tx.SaveProgress()
		}

		result = res
		broken = c
		balance = tx.Account.WalletBalance
		penaltyOn = tx.Progress.IsPenaltyMode
		return nil
	})
	if err != nil {
		return nil, s.txError("withdraw early", userID, cycleID, err)
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":   userID,
		"cycle_id":  cycleID,
		"withdrawn": result.WithdrawnAmount.String(),
		"tax":       result.TaxApplied.String(),
	}).Info("Cycle withdrawn early")

	s.publish(ctx, model.CycleEvent{
		Type:          model.MessageTypeCycleBroken,
		UserID:        userID,
		CycleID:       broken.ID,
		CycleType:     broken.CycleType,
		ChanceNumber:  broken.ChanceNumber,
		Amount:        util.MoneyPtr(result.WithdrawnAmount),
		Profit:        util.MoneyPtr(result.ProfitSoFar),
		Tax:           util.MoneyPtr(result.TaxApplied),
		WalletBalance: util.MoneyPtr(balance),
	})
	if result.PenaltyModeActivated {
		s.publish(ctx, model.CycleEvent{
			Type:        model.MessageTypePenaltyChanged,
			UserID:      userID,
			PenaltyMode: &penaltyOn,
		})
	}

	return result, nil
}

// GetCycleInfo returns the dashboard view: active cycles, progress, balance and unlocks
func (s *CycleService) GetCycleInfo(ctx context.Context, userID string) (*model.CycleInfo, error) {
	account, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, s.internal("load account", userID, "", err)
	}
	progress, err := s.repo.GetProgress(ctx, userID)
	if err != nil {
		return nil, s.internal("load progress", userID, "", err)
	}
	cycles, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("list cycles", userID, "", err)
	}

	now := s.now()
	info := &model.CycleInfo{
		ActiveCycles:   map[int]*model.Cycle{1: nil, 2: nil},
		Progress:       progress,
		WalletBalance:  account.WalletBalance,
		UnlockedCycles: cycle.UnlockedMap(progress.CompletedCycles),
		Accrual:        []model.Accrual{},
	}
	for _, c := range cycles {
		if !c.IsActive() {
			continue
		}
		info.ActiveCycles[c.ChanceNumber] = c
		info.Accrual = append(info.Accrual, s.rules.Accrual(c, progress.IsPenaltyMode, now))
	}
	info.ActiveCycle = info.ActiveCycles[1]
	if info.ActiveCycle == nil {
		info.ActiveCycle = info.ActiveCycles[2]
	}

	return info, nil
}

// GetCycleHistory returns completed and broken cycles, newest first, with stats
func (s *CycleService) GetCycleHistory(ctx context.Context, userID string) (*model.CycleHistory, error) {
	progress, err := s.repo.GetProgress(ctx, userID)
	if err != nil {
		return nil, s.internal("load progress", userID, "", err)
	}
	cycles, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("list cycles", userID, "", err)
	}

	terminal := make([]*model.Cycle, 0, len(cycles))
	for _, c := range cycles {
		if c.Status.IsTerminal() {
			terminal = append(terminal, c)
		}
	}

	return &model.CycleHistory{
		Cycles:   terminal,
		Progress: progress,
		Stats:    s.rules.HistoryStats(terminal),
	}, nil
}

func (s *CycleService) publish(ctx context.Context, ev model.CycleEvent) {
	if s.events == nil {
		return
	}
	ev.OccurredAt = s.now().UTC()
	s.events.PublishCycleEvent(ctx, ev)
}

// txError maps repository and transaction failures to client errors
func (s *CycleService) txError(op, userID, cycleID string, err error) error {
	switch {
	case util.IsAppError(err):
		return err
	case errors.Is(err, repository.ErrCycleNotFound):
		return util.ErrNotFound("Cycle not found or not active")
	case errors.Is(err, redis.ErrTxConflict):
		s.log.WithFields(map[string]interface{}{"user_id": userID, "cycle_id": cycleID}).Warnf("%s: transaction retries exhausted", op)
		return util.ErrConflict("Too many concurrent updates, please retry")
	default:
		return s.internal(op, userID, cycleID, err)
	}
}

func (s *CycleService) internal(op, userID, cycleID string, err error) error {
	fields := map[string]interface{}{"user_id": userID}
	if cycleID != "" {
		fields["cycle_id"] = cycleID
	}
	s.log.WithFields(fields).Error("Failed to "+op, err)
	return util.ErrInternalServer("Internal server error")
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/broker"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"
)

// EventBroker fans cycle events out to other systems
type EventBroker interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// ChatNotifier delivers a short text to a Telegram chat
type ChatNotifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// TelegramIDLookup resolves the chat of a user
type TelegramIDLookup interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
}

// NotificationService publishes committed cycle events. Publishing never fails
// the caller; every sink logs its own errors.
type NotificationService struct {
	redis  *redis.Client
	broker EventBroker
	chat   ChatNotifier
	users  TelegramIDLookup
	log    *logger.Logger

	wg sync.WaitGroup
}

func NewNotificationService(redisClient *redis.Client, log *logger.Logger) *NotificationService {
	return &NotificationService{
		redis: redisClient,
		log:   log,
	}
}

// WithBroker enables AMQP fan-out
func (s *NotificationService) WithBroker(b EventBroker) *NotificationService {
	s.broker = b
	return s
}

// WithTelegram enables bot messages to users that have a telegram_id
func (s *NotificationService) WithTelegram(chat ChatNotifier, users TelegramIDLookup) *NotificationService {
	s.chat = chat
	s.users = users
	return s
}

// NotifyUser sends a message to a specific user via WebSocket
func (s *NotificationService) NotifyUser(ctx context.Context, userID string, msgType model.WSMessageType, payload interface{}) {
	msg := model.WSMessage{
		Type:    msgType,
		Payload: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Errorf("Failed to marshal notification: %v", err)
		return
	}

	channel := redis.UserEventsChannel(userID)
	if err := s.redis.Publish(ctx, channel, data); err != nil {
		s.log.Errorf("Failed to publish notification to channel %s: %v", channel, err)
	}
}

// PublishCycleEvent sends ev to the user's websocket channel, the broker and Telegram
func (s *NotificationService) PublishCycleEvent(ctx context.Context, ev model.CycleEvent) {
	s.NotifyUser(ctx, ev.UserID, ev.Type, ev)

	if s.broker != nil {
		if err := s.broker.Publish(ctx, broker.RoutingKey("cycle", string(ev.Type)), ev); err != nil {
			s.log.WithFields(map[string]interface{}{
				"user_id":  ev.UserID,
				"cycle_id": ev.CycleID,
				"event":    ev.Type,
			}).Error("Failed to publish cycle event to broker", err)
		}
	}

	if s.chat != nil && s.users != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sendTelegram(context.WithoutCancel(ctx), ev)
		}()
	}
}

func (s *NotificationService) sendTelegram(ctx context.Context, ev model.CycleEvent) {
	user, err := s.users.GetByID(ctx, ev.UserID)
	if err != nil || user.TelegramID == 0 {
		return
	}

	if err := s.chat.SendText(ctx, user.TelegramID, FormatCycleEvent(ev)); err != nil {
		s.log.WithField("user_id", ev.UserID).Warnf("Telegram notification failed: %v", err)
	}
}

// Wait blocks until in-flight Telegram deliveries finish
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// FormatCycleEvent renders ev as a one-line chat message
func FormatCycleEvent(ev model.CycleEvent) string {
	switch ev.Type {
	case model.MessageTypeCycleStarted:
		return fmt.Sprintf("Cycle %d started on chance %d with %s.", ev.CycleType, ev.ChanceNumber, util.FormatMoney(ev.Amount))
	case model.MessageTypeCycleToppedUp:
		return fmt.Sprintf("Added %s to your cycle %d.", util.FormatMoney(ev.Amount), ev.CycleType)
	case model.MessageTypeCycleCompleted:
		return fmt.Sprintf("Cycle %d completed: %s paid out, profit %s.", ev.CycleType, util.FormatMoney(ev.Amount), util.FormatMoney(ev.Profit))
	case model.MessageTypeCycleBroken:
		return fmt.Sprintf("Cycle %d withdrawn early: %s credited after %s tax.", ev.CycleType, util.FormatMoney(ev.Amount), util.FormatMoney(ev.Tax))
	case model.MessageTypePenaltyChanged:
		if ev.PenaltyMode != nil && *ev.PenaltyMode {
			return "Penalty mode is now on: active cycles earn a flat daily rate."
		}
		return "Penalty mode is now off."
	default:
		return string(ev.Type)
	}
}

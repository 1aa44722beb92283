package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/logger"
)

type fakeBroker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (b *fakeBroker) Publish(_ context.Context, routingKey string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, routingKey)
	return b.err
}

type fakeChat struct {
	mu    sync.Mutex
	texts map[int64][]string
}

func (f *fakeChat) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.texts == nil {
		f.texts = make(map[int64][]string)
	}
	f.texts[chatID] = append(f.texts[chatID], text)
	return nil
}

func dialHub(t *testing.T, hub *WSHub, userID string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("user_id", userID)
		hub.ServeWS(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) model.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg model.WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestCycleEventReachesWebsocket(t *testing.T) {
	env := newTestEnv(t)
	hub := NewWSHub(env.redis, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	select {
	case <-hub.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("hub did not subscribe")
	}

	conn := dialHub(t, hub, "u1")

	// the pong proves the connection is registered
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, model.MessageTypePong, readWS(t, conn).Type)
	assert.Equal(t, 1, hub.ConnectionCount("u1"))

	broker := &fakeBroker{err: errors.New("broker down")}
	notifier := NewNotificationService(env.redis, logger.Nop()).WithBroker(broker)

	amount := dec("100")
	notifier.PublishCycleEvent(context.Background(), model.CycleEvent{
		Type:         model.MessageTypeCycleStarted,
		UserID:       "u1",
		CycleID:      "c1",
		CycleType:    1,
		ChanceNumber: 1,
		Amount:       &amount,
	})
	// other users' events are not delivered here
	notifier.NotifyUser(context.Background(), "u2", model.MessageTypeCycleBroken, nil)

	msg := readWS(t, conn)
	assert.Equal(t, model.MessageTypeCycleStarted, msg.Type)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "c1", payload["cycle_id"])

	assert.Equal(t, []string{"cycle.cycle_started"}, broker.keys)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestTelegramNotification(t *testing.T) {
	env := newTestEnv(t)
	createUser(t, env, "u1", "whale", "hunter2hunter2", model.RoleUser)
	linked := createUser(t, env, "u2", "shark", "hunter2hunter2", model.RoleUser)
	linked.TelegramID = 777
	require.NoError(t, env.users.Update(context.Background(), linked))

	chat := &fakeChat{}
	notifier := NewNotificationService(env.redis, logger.Nop()).WithTelegram(chat, env.users)

	final, profit := dec("200"), dec("100")
	for _, userID := range []string{"u1", "u2"} {
		notifier.PublishCycleEvent(context.Background(), model.CycleEvent{
			Type:      model.MessageTypeCycleCompleted,
			UserID:    userID,
			CycleType: 1,
			Amount:    &final,
			Profit:    &profit,
		})
	}
	notifier.Wait()

	require.Len(t, chat.texts, 1)
	assert.Equal(t, []string{"Cycle 1 completed: 200.00 paid out, profit 100.00."}, chat.texts[777])
}

func TestFormatCycleEvent(t *testing.T) {
	on := true
	tax, credit := dec("19.8"), dec("90.2")

	assert.Equal(t, "Cycle 1 withdrawn early: 90.20 credited after 19.80 tax.",
		FormatCycleEvent(model.CycleEvent{Type: model.MessageTypeCycleBroken, CycleType: 1, Amount: &credit, Tax: &tax}))
	assert.Contains(t, FormatCycleEvent(model.CycleEvent{Type: model.MessageTypePenaltyChanged, PenaltyMode: &on}), "on")
	assert.Equal(t, "Penalty mode is now off.", FormatCycleEvent(model.CycleEvent{Type: model.MessageTypePenaltyChanged}))
	assert.Equal(t, util.FormatMoney(nil), "0.00")
}

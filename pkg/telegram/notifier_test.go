package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestSendText(t *testing.T) {
	fake := &fakeSender{}
	n := NewNotifierWithSender(fake)

	require.NoError(t, n.SendText(context.Background(), 42, "cycle completed"))
	require.Len(t, fake.sent, 1)

	msg, ok := fake.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "cycle completed", msg.Text)
}

func TestSendTextErrors(t *testing.T) {
	fake := &fakeSender{err: errors.New("blocked by user")}
	n := NewNotifierWithSender(fake)
	assert.Error(t, n.SendText(context.Background(), 1, "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.SendText(ctx, 1, "x"), context.Canceled)
}

package channel

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"crmhub/internal/notify/models"
	tenantmodels "crmhub/internal/tenant/models"
)

type fakeMailer struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeMailer) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	f.sent = append(f.sent, messages...)
	return f.err
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

var notification = &models.Notification{Title: "New lead: Ann", Body: "Source webform:Site"}

func TestEmailDeliver(t *testing.T) {
	sender := &fakeMailer{}
	e := &Email{sender: sender, from: "crm@example.com"}

	err := e.Deliver(context.Background(), &tenantmodels.User{Name: "Bob", Email: "bob@example.com"}, notification)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	rcpts, err := sender.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@example.com"}, rcpts)
	assert.Equal(t, []string{"New lead: Ann"}, sender.sent[0].GetGenHeader(mail.HeaderSubject))

	assert.ErrorIs(t, e.Deliver(context.Background(), &tenantmodels.User{}, notification), ErrNoAddress)

	sender.err = errors.New("connection refused")
	assert.ErrorContains(t, e.Deliver(context.Background(), &tenantmodels.User{Email: "bob@example.com"}, notification), "connection refused")
}

func TestTelegramDeliver(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot}

	require.NoError(t, tg.Deliver(context.Background(), &tenantmodels.User{TelegramChatID: 42}, notification))
	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "*New lead: Ann*\nSource webform:Site", msg.Text)

	assert.ErrorIs(t, tg.Deliver(context.Background(), &tenantmodels.User{}, notification), ErrNoAddress)
}

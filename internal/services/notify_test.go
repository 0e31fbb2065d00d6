package services

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestRedisNotifier_Notify(t *testing.T) {
	t.Run("pushes payload onto the notification queue", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		notifier := NewRedisNotifier(client)

		mock.Regexp().ExpectRPush(notificationQueue, `"accountId":"alice"`).SetVal(1)

		notifier.Notify(context.Background(), "alice", "You received a gift", "Someone sent you 9000", nil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil client degrades to log-only", func(t *testing.T) {
		notifier := NewRedisNotifier(nil)
		notifier.Notify(context.Background(), "alice", "title", "body", nil)
	})

	t.Run("queue failure is swallowed", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		notifier := NewRedisNotifier(client)

		mock.Regexp().ExpectRPush(notificationQueue, `"accountId":"bob"`).
			SetErr(assert.AnError)

		notifier.Notify(context.Background(), "bob", "title", "body", nil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPayoutService_SubmitQueuesToRedis(t *testing.T) {
	client, mock := redismock.NewClientMock()
	service := NewPayoutService(client, testWalletConfig())

	mock.Regexp().ExpectRPush(payoutQueue, `"requestId":"req-1"`).SetVal(1)

	err := service.Submit(context.Background(), "req-1", "alice", "mpesa", "+254712345678", 9500)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package services

import (
	"context"

	"github.com/heartlink/backend/internal/gateway"
	"github.com/stretchr/testify/mock"
)

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreateCheckout(ctx context.Context, accountID, tier string, amount int64, currency string) (*gateway.Checkout, error) {
	args := m.Called(ctx, accountID, tier, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Checkout), args.Error(1)
}

func (m *MockGatewayClient) GetCheckoutStatus(ctx context.Context, gatewayTransactionID string) (*gateway.Checkout, error) {
	args := m.Called(ctx, gatewayTransactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Checkout), args.Error(1)
}

type MockConnectionStore struct {
	mock.Mock
}

func (m *MockConnectionStore) Exists(ctx context.Context, userA, userB string) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *MockConnectionStore) CreateWithMessage(ctx context.Context, senderID, recipientID, messageText string) (string, error) {
	args := m.Called(ctx, senderID, recipientID, messageText)
	return args.String(0), args.Error(1)
}

type MockTierStore struct {
	mock.Mock
}

func (m *MockTierStore) SetTier(ctx context.Context, userID, tier string) error {
	args := m.Called(ctx, userID, tier)
	return args.Error(0)
}

func (m *MockTierStore) ClearTier(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// noopNotifier swallows notifications; transfer tests never assert on
// the fire-and-forget side channel.
type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, accountID, title, body string, data map[string]any) {}

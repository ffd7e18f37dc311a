package service

import (
	"context"

	"wapool/pkg/whatsapp/types"

	"github.com/stretchr/testify/mock"
)

type mockGraphClient struct {
	mock.Mock
}

func (m *mockGraphClient) GetPhoneNumber(ctx context.Context, token, phoneNumberID string) (*types.PhoneNumber, error) {
	args := m.Called(ctx, token, phoneNumberID)
	if v := args.Get(0); v != nil {
		return v.(*types.PhoneNumber), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGraphClient) GetBusinessAccount(ctx context.Context, token, wabaID string) (*types.BusinessAccount, error) {
	args := m.Called(ctx, token, wabaID)
	if v := args.Get(0); v != nil {
		return v.(*types.BusinessAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGraphClient) ListPhoneNumbers(ctx context.Context, token, wabaID string) ([]types.PhoneNumber, error) {
	args := m.Called(ctx, token, wabaID)
	if v := args.Get(0); v != nil {
		return v.([]types.PhoneNumber), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGraphClient) SendTextMessage(ctx context.Context, token, phoneNumberID, to, body string) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, token, phoneNumberID, to, body)
	if v := args.Get(0); v != nil {
		return v.(*types.SendMessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockNotifier) Enabled() bool {
	return true
}

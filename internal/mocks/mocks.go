// Package mocks contains testify mocks for the model interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/storefront-client/internal/model"
)

// KVStore is a mock of model.KVStore.
type KVStore struct {
	mock.Mock
}

func (m *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	var value []byte
	if v := args.Get(0); v != nil {
		value = v.([]byte)
	}
	return value, args.Error(1)
}

func (m *KVStore) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *KVStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// CredentialStore is a mock of model.CredentialStore.
type CredentialStore struct {
	mock.Mock
}

func (m *CredentialStore) Read(ctx context.Context) (model.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.Credential), args.Error(1)
}

func (m *CredentialStore) Write(ctx context.Context, credential model.Credential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

func (m *CredentialStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// TokenInspector is a mock of model.TokenInspector.
type TokenInspector struct {
	mock.Mock
}

func (m *TokenInspector) Inspect(token string) (model.Claims, error) {
	args := m.Called(token)
	return args.Get(0).(model.Claims), args.Error(1)
}

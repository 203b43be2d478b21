package repository

import (
	"context"

	"stockwatch/internal/kv"

	"github.com/stretchr/testify/mock"
)

// mockBackend is a testify mock of kv.Backend.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(kv.Item), args.Error(1)
}

func (m *mockBackend) Put(ctx context.Context, put kv.Put) error {
	args := m.Called(ctx, put)
	return args.Error(0)
}

func (m *mockBackend) Update(ctx context.Context, update kv.Update) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func (m *mockBackend) Delete(ctx context.Context, del kv.Delete) error {
	args := m.Called(ctx, del)
	return args.Error(0)
}

func (m *mockBackend) Query(ctx context.Context, pk string) ([]kv.Item, error) {
	args := m.Called(ctx, pk)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]kv.Item), args.Error(1)
}

func (m *mockBackend) TransactWrite(ctx context.Context, items []kv.TransactItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

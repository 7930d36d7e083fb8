package mocks

import (
	"github.com/brettbedarf/bastion"
	"github.com/stretchr/testify/mock"
)

// MockBackingStore implements bastion.BackingStore for testing across packages
type MockBackingStore struct {
	mock.Mock
}

func (m *MockBackingStore) Allocate(size int64) (int64, error) {
	args := m.Called(size)

	// Handle function return types (for tests that hand out offsets)
	if fn, ok := args.Get(0).(func(int64) int64); ok {
		return fn(size), args.Error(1)
	}

	if args.Get(0) == nil {
		return 0, args.Error(1)
	}
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBackingStore) Persist(offset int64, p []byte) error {
	args := m.Called(offset, p)
	return args.Error(0)
}

func (m *MockBackingStore) Release(offset, size int64) error {
	args := m.Called(offset, size)
	return args.Error(0)
}

var _ bastion.BackingStore = (*MockBackingStore)(nil)

// MockResettableStore is a MockBackingStore that also implements bastion.Resetter
type MockResettableStore struct {
	MockBackingStore
}

func (m *MockResettableStore) Reset() error {
	args := m.Called()
	return args.Error(0)
}

var _ bastion.Resetter = (*MockResettableStore)(nil)

// MockStoreProvider implements bastion.StoreProvider for testing across packages
type MockStoreProvider struct {
	mock.Mock
}

func (m *MockStoreProvider) NewStore(totalSize int64) (bastion.BackingStore, error) {
	args := m.Called(totalSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(bastion.BackingStore), args.Error(1)
}

var _ bastion.StoreProvider = (*MockStoreProvider)(nil)

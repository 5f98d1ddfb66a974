// Package mocks provides test doubles for the ai package.
package mocks

import (
	"context"

	ai "github.com/sells-group/boq-extractor/internal/ai"
	mock "github.com/stretchr/testify/mock"
)

// MockProvider is a mock type for the Provider interface.
type MockProvider struct {
	mock.Mock
}

// Name provides a mock function with given fields:
func (_m *MockProvider) Name() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Name")
	}

	return ret.String(0)
}

// Available provides a mock function with given fields:
func (_m *MockProvider) Available() bool {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Available")
	}

	return ret.Bool(0)
}

// Complete provides a mock function with given fields: ctx, p
func (_m *MockProvider) Complete(ctx context.Context, p ai.Prompt) (string, error) {
	ret := _m.Called(ctx, p)

	if len(ret) == 0 {
		panic("no return value specified for Complete")
	}

	if rf, ok := ret.Get(0).(func(context.Context, ai.Prompt) (string, error)); ok {
		return rf(ctx, p)
	}
	return ret.String(0), ret.Error(1)
}

// NewMockProvider creates a new instance of MockProvider and registers
// cleanup assertions on t.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

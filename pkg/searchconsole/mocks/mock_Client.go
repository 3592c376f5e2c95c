// Package mocks provides test doubles for the searchconsole client.
package mocks

import (
	"context"

	searchconsole "github.com/sells-group/search-harvest/pkg/searchconsole"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Query provides a mock function with given fields: ctx, siteURL, req
func (_m *MockClient) Query(ctx context.Context, siteURL string, req searchconsole.QueryRequest) (*searchconsole.QueryResponse, error) {
	ret := _m.Called(ctx, siteURL, req)

	if len(ret) == 0 {
		panic("no return value specified for Query")
	}

	var r0 *searchconsole.QueryResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, searchconsole.QueryRequest) (*searchconsole.QueryResponse, error)); ok {
		return rf(ctx, siteURL, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, searchconsole.QueryRequest) *searchconsole.QueryResponse); ok {
		r0 = rf(ctx, siteURL, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*searchconsole.QueryResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, searchconsole.QueryRequest) error); ok {
		r1 = rf(ctx, siteURL, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

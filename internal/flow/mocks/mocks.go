// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package mocks provides testify mocks for the flow package's
// collaborator interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/resetgate/resetgate/internal/directory"
	"github.com/resetgate/resetgate/internal/token"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockDirectory mocks flow.Directory.
type MockDirectory struct {
	mock.Mock
}

// NewMockDirectory creates a MockDirectory whose expectations are
// asserted on test cleanup.
func NewMockDirectory(t testingT) *MockDirectory {
	m := &MockDirectory{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Lookup implements flow.Directory.
func (m *MockDirectory) Lookup(ctx context.Context, username string) (*directory.Identity, error) {
	args := m.Called(ctx, username)
	var identity *directory.Identity
	if v := args.Get(0); v != nil {
		identity = v.(*directory.Identity)
	}
	return identity, args.Error(1)
}

// ChangePassword implements flow.Directory.
func (m *MockDirectory) ChangePassword(ctx context.Context, dn, newPassword string) error {
	args := m.Called(ctx, dn, newPassword)
	return args.Error(0)
}

// MockIssuer mocks flow.Issuer.
type MockIssuer struct {
	mock.Mock
}

// NewMockIssuer creates a MockIssuer whose expectations are asserted on
// test cleanup.
func NewMockIssuer(t testingT) *MockIssuer {
	m := &MockIssuer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Issue implements flow.Issuer.
func (m *MockIssuer) Issue(identity directory.Identity, ttl time.Duration) (*token.Token, error) {
	args := m.Called(identity, ttl)
	var tok *token.Token
	if v := args.Get(0); v != nil {
		tok = v.(*token.Token)
	}
	return tok, args.Error(1)
}

// Validate implements flow.Issuer.
func (m *MockIssuer) Validate(value string) *token.Token {
	args := m.Called(value)
	var tok *token.Token
	if v := args.Get(0); v != nil {
		tok = v.(*token.Token)
	}
	return tok
}

// Consume implements flow.Issuer.
func (m *MockIssuer) Consume(value string) bool {
	args := m.Called(value)
	return args.Bool(0)
}

// MockTokenSender mocks sender.TokenSender.
type MockTokenSender struct {
	mock.Mock
}

// NewMockTokenSender creates a MockTokenSender whose expectations are
// asserted on test cleanup.
func NewMockTokenSender(t testingT) *MockTokenSender {
	m := &MockTokenSender{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Eligible implements sender.TokenSender.
func (m *MockTokenSender) Eligible(identity *directory.Identity) error {
	args := m.Called(identity)
	return args.Error(0)
}

// Deliver implements sender.TokenSender.
func (m *MockTokenSender) Deliver(ctx context.Context, identity *directory.Identity, tokenValue string) error {
	args := m.Called(ctx, identity, tokenValue)
	return args.Error(0)
}

// SuccessMessage implements sender.TokenSender.
func (m *MockTokenSender) SuccessMessage() string {
	args := m.Called()
	return args.String(0)
}

// Package mocks holds testify mocks for the protocol collaborator interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var (
	_ protocol.PacketStore           = (*MockPacketStore)(nil)
	_ protocol.CallDataReader        = (*MockCallDataReader)(nil)
	_ protocol.ConfirmationReader    = (*MockConfirmationReader)(nil)
	_ protocol.VerifiedStateReader   = (*MockVerifiedStateReader)(nil)
	_ protocol.VerificationSubmitter = (*MockVerificationSubmitter)(nil)
	_ protocol.EvidenceProvider      = (*MockEvidenceProvider)(nil)
)

type MockPacketStore struct {
	mock.Mock
}

func (m *MockPacketStore) Put(ctx context.Context, id protocol.MessageID, sp protocol.StoredPacket) error {
	args := m.Called(ctx, id, sp)
	return args.Error(0)
}

func (m *MockPacketStore) Get(ctx context.Context, id protocol.MessageID) (protocol.StoredPacket, bool, error) {
	args := m.Called(ctx, id)
	//nolint
	return args.Get(0).(protocol.StoredPacket), args.Bool(1), args.Error(2)
}

func (m *MockPacketStore) GetByHeader(ctx context.Context, headerHash protocol.Bytes32) (protocol.StoredPacket, bool, error) {
	args := m.Called(ctx, headerHash)
	//nolint
	return args.Get(0).(protocol.StoredPacket), args.Bool(1), args.Error(2)
}

type MockCallDataReader struct {
	mock.Mock
}

func (m *MockCallDataReader) AssignmentParams(ctx context.Context, chain protocol.ChainID, tx protocol.TxRef, ordinal int) (protocol.AssignmentParams, error) {
	args := m.Called(ctx, chain, tx, ordinal)
	//nolint
	return args.Get(0).(protocol.AssignmentParams), args.Error(1)
}

type MockConfirmationReader struct {
	mock.Mock
}

func (m *MockConfirmationReader) ConfirmationStatus(ctx context.Context, chain protocol.ChainID, ref protocol.TxRef) (protocol.ConfirmationStatus, error) {
	args := m.Called(ctx, chain, ref)
	//nolint
	return args.Get(0).(protocol.ConfirmationStatus), args.Error(1)
}

type MockVerifiedStateReader struct {
	mock.Mock
}

func (m *MockVerifiedStateReader) IsVerified(ctx context.Context, req protocol.VerificationRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

type MockVerificationSubmitter struct {
	mock.Mock
}

func (m *MockVerificationSubmitter) SubmitVerification(ctx context.Context, req protocol.VerificationRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

type MockEvidenceProvider struct {
	mock.Mock
}

func (m *MockEvidenceProvider) Evidence(ctx context.Context, id protocol.MessageID) ([]byte, error) {
	args := m.Called(ctx, id)
	//nolint
	return args.Get(0).([]byte), args.Error(1)
}

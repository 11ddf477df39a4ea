package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/processone/fluux-messenger-sub003/types/archive"
)

type MockTargetSource struct {
	mock.Mock
}

// Conversations implements archive.TargetSource.
func (m *MockTargetSource) Conversations() []archive.Conversation {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]archive.Conversation)
}

// JoinedRooms implements archive.TargetSource.
func (m *MockTargetSource) JoinedRooms() []archive.Room {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]archive.Room)
}

var _ archive.TargetSource = (*MockTargetSource)(nil)

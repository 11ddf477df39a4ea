package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/processone/fluux-messenger-sub003/types/archive"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

type MockPreviewSink struct {
	mock.Mock
}

// UpdateLastMessagePreview implements archive.PreviewSink.
func (m *MockPreviewSink) UpdateLastMessagePreview(preview *archive.Preview) {
	m.Called(preview)
}

// LoadPreviewFromCache implements archive.PreviewSink.
func (m *MockPreviewSink) LoadPreviewFromCache(roomID string) {
	m.Called(roomID)
}

var _ archive.PreviewSink = (*MockPreviewSink)(nil)

type MockHistorySink struct {
	mock.Mock
}

// StoreConversationHistory implements archive.HistorySink.
func (m *MockHistorySink) StoreConversationHistory(
	conversationID string,
	messages []*store.Message,
) {
	m.Called(conversationID, messages)
}

// StoreRoomHistory implements archive.HistorySink.
func (m *MockHistorySink) StoreRoomHistory(
	roomID string,
	messages []*store.RoomMessage,
) {
	m.Called(roomID, messages)
}

var _ archive.HistorySink = (*MockHistorySink)(nil)

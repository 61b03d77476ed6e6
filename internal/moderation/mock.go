package moderation

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockModerator struct {
	mock.Mock
}

func (m *MockModerator) ModerateText(ctx context.Context, content string) (bool, string, error) {
	args := m.Called(ctx, content)
	return args.Bool(0), args.String(1), args.Error(2)
}

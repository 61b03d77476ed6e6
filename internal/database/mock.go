package database

import (
	"github.com/stretchr/testify/mock"
)

type MockCommunityRepository struct {
	mock.Mock
}

func (m *MockCommunityRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCommunityRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCommunityRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCommunityRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCommunityRepository) UpdateAccountRoom(accountId int, roomId string) error {
	args := m.Called(accountId, roomId)
	return args.Error(0)
}
func (m *MockCommunityRepository) UpsertRoom(roomId, displayName string) (Room, error) {
	args := m.Called(roomId, displayName)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockCommunityRepository) GetRoom(roomId string) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockCommunityRepository) IncrementMemberCount(roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockCommunityRepository) DecrementMemberCount(roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockCommunityRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCommunityRepository) GetMessage(externalId string) (Message, error) {
	args := m.Called(externalId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCommunityRepository) GetRecentMessages(roomId string, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockCommunityRepository) SoftDeleteMessage(externalId, placeholder string) error {
	args := m.Called(externalId, placeholder)
	return args.Error(0)
}
func (m *MockCommunityRepository) CountMessages(roomId string) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockCommunityRepository) DeleteOldestMessages(roomId string, n int) (int, error) {
	args := m.Called(roomId, n)
	return args.Int(0), args.Error(1)
}
func (m *MockCommunityRepository) PurgeDeletedMessages(roomId string) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockCommunityRepository) CreateBlob(params CreateBlobParams) (Blob, error) {
	args := m.Called(params)
	return args.Get(0).(Blob), args.Error(1)
}
func (m *MockCommunityRepository) GetBlob(id string) (Blob, error) {
	args := m.Called(id)
	return args.Get(0).(Blob), args.Error(1)
}

package database

type CommunityRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	UpdateAccountRoom(accountId int, roomId string) error
	UpsertRoom(roomId, displayName string) (Room, error)
	GetRoom(roomId string) (Room, error)
	IncrementMemberCount(roomId string) error
	DecrementMemberCount(roomId string) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(externalId string) (Message, error)
	GetRecentMessages(roomId string, limit int) ([]Message, error)
	SoftDeleteMessage(externalId, placeholder string) error
	CountMessages(roomId string) (int, error)
	DeleteOldestMessages(roomId string, n int) (int, error)
	PurgeDeletedMessages(roomId string) (int, error)
	CreateBlob(params CreateBlobParams) (Blob, error)
	GetBlob(id string) (Blob, error)
}

package database

import "time"

type User struct {
	Id            int
	EmailAddress  string
	Name          string
	Picture       string
	Location      string
	CommunityRoom string
	PasswordHash  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Room struct {
	RoomId      string
	DisplayName string
	MemberCount int
	CreatedAt   time.Time
}

type Message struct {
	Id          int
	ExternalId  string
	RoomId      string
	UserEmail   string
	UserName    string
	UserPicture string
	Content     string
	MessageType string
	MediaUrl    string
	IsDeleted   bool
	CreatedAt   time.Time
}

type Blob struct {
	Id          string
	Filename    string
	ContentType string
	OwnerId     int
	Data        []byte
	CreatedAt   time.Time
}

type CreateAccountParams struct {
	EmailAddress string
	Name         string
	Picture      string
	Location     string
	PasswordHash string
}

type CreateMessageParams struct {
	ExternalId  string
	RoomId      string
	UserEmail   string
	UserName    string
	UserPicture string
	Content     string
	MessageType string
	MediaUrl    string
	CreatedAt   time.Time
}

type CreateBlobParams struct {
	Id          string
	Filename    string
	ContentType string
	OwnerId     int
	Data        []byte
}

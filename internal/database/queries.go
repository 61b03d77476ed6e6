package database

import (
	"time"
)

func (db *PgCommunityRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (email, name, picture, location, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, email, name, picture, location, community_room, created_at, updated_at",
		params.EmailAddress,
		params.Name,
		params.Picture,
		params.Location,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.Name,
		&u.Picture,
		&u.Location,
		&u.CommunityRoom,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgCommunityRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, name, picture, location, community_room, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.Name,
		&u.Picture,
		&u.Location,
		&u.CommunityRoom,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgCommunityRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, name, picture, location, community_room, password_hash, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.Name,
		&u.Picture,
		&u.Location,
		&u.CommunityRoom,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgCommunityRepository) UpdateAccountRoom(accountId int, roomId string) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET community_room = $2, updated_at = $3 WHERE id = $1",
		accountId,
		roomId,
		time.Now().UTC(),
	)

	return err
}

// UpsertRoom is an atomic find-or-create: two concurrent first-time joins
// for the same normalized location resolve to a single row. The no-op
// DO UPDATE makes RETURNING yield the existing row on conflict.
func (db *PgCommunityRepository) UpsertRoom(roomId, displayName string) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO community_rooms (room_id, display_name, member_count, created_at) "+
			"VALUES ($1, $2, 0, $3) "+
			"ON CONFLICT (room_id) DO UPDATE SET room_id = EXCLUDED.room_id "+
			"RETURNING room_id, display_name, member_count, created_at",
		roomId,
		displayName,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.RoomId,
		&room.DisplayName,
		&room.MemberCount,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgCommunityRepository) GetRoom(roomId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT room_id, display_name, member_count, created_at "+
			"FROM community_rooms WHERE room_id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.RoomId,
		&room.DisplayName,
		&room.MemberCount,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgCommunityRepository) IncrementMemberCount(roomId string) error {
	_, err := db.conn.Exec(
		"UPDATE community_rooms SET member_count = member_count + 1 WHERE room_id = $1",
		roomId,
	)

	return err
}

// DecrementMemberCount clamps at zero; the counter is advisory and must
// never go negative.
func (db *PgCommunityRepository) DecrementMemberCount(roomId string) error {
	_, err := db.conn.Exec(
		"UPDATE community_rooms SET member_count = GREATEST(member_count - 1, 0) WHERE room_id = $1",
		roomId,
	)

	return err
}

func (db *PgCommunityRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO community_messages "+
			"(external_id, room_id, user_email, user_name, user_picture, content, message_type, media_url, is_deleted, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9) "+
			"RETURNING id, external_id, room_id, user_email, user_name, user_picture, content, message_type, media_url, is_deleted, created_at",
		params.ExternalId,
		params.RoomId,
		params.UserEmail,
		params.UserName,
		params.UserPicture,
		params.Content,
		params.MessageType,
		params.MediaUrl,
		params.CreatedAt,
	)

	return scanMessage(res)
}

func (db *PgCommunityRepository) GetMessage(externalId string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, room_id, user_email, user_name, user_picture, content, message_type, media_url, is_deleted, created_at "+
			"FROM community_messages WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	return scanMessage(row)
}

// GetRecentMessages returns up to limit non-deleted messages for the
// room, newest first. Callers reverse for chronological display.
func (db *PgCommunityRepository) GetRecentMessages(roomId string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, external_id, room_id, user_email, user_name, user_picture, content, message_type, media_url, is_deleted, created_at "+
			"FROM community_messages WHERE room_id = $1 AND is_deleted = FALSE "+
			"ORDER BY created_at DESC, id DESC LIMIT $2",
		roomId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Id,
			&msg.ExternalId,
			&msg.RoomId,
			&msg.UserEmail,
			&msg.UserName,
			&msg.UserPicture,
			&msg.Content,
			&msg.MessageType,
			&msg.MediaUrl,
			&msg.IsDeleted,
			&msg.CreatedAt,
		); err != nil {
			break
		}

		messages = append(messages, msg)
	}

	return messages, err
}

func (db *PgCommunityRepository) SoftDeleteMessage(externalId, placeholder string) error {
	_, err := db.conn.Exec(
		"UPDATE community_messages SET is_deleted = TRUE, content = $2 WHERE external_id = $1",
		externalId,
		placeholder,
	)

	return err
}

func (db *PgCommunityRepository) CountMessages(roomId string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM community_messages WHERE room_id = $1 AND is_deleted = FALSE",
		roomId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

// DeleteOldestMessages physically removes the n oldest non-deleted rows
// in the room, ordered by creation time with id as tiebreak.
func (db *PgCommunityRepository) DeleteOldestMessages(roomId string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	res, err := db.conn.Exec(
		"DELETE FROM community_messages WHERE id IN ("+
			"SELECT id FROM community_messages WHERE room_id = $1 AND is_deleted = FALSE "+
			"ORDER BY created_at ASC, id ASC LIMIT $2)",
		roomId,
		n,
	)
	if err != nil {
		return 0, err
	}

	deleted, err := res.RowsAffected()

	return int(deleted), err
}

// PurgeDeletedMessages drops soft-deleted tombstones that have fallen
// behind the oldest retained message, so they don't accumulate forever.
func (db *PgCommunityRepository) PurgeDeletedMessages(roomId string) (int, error) {
	res, err := db.conn.Exec(
		"DELETE FROM community_messages WHERE room_id = $1 AND is_deleted = TRUE "+
			"AND created_at < COALESCE((SELECT MIN(created_at) FROM community_messages "+
			"WHERE room_id = $1 AND is_deleted = FALSE), 'infinity')",
		roomId,
	)
	if err != nil {
		return 0, err
	}

	purged, err := res.RowsAffected()

	return int(purged), err
}

func (db *PgCommunityRepository) CreateBlob(params CreateBlobParams) (Blob, error) {
	res := db.conn.QueryRow(
		"INSERT INTO media_blobs (id, filename, content_type, owner_id, data, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, filename, content_type, owner_id, created_at",
		params.Id,
		params.Filename,
		params.ContentType,
		params.OwnerId,
		params.Data,
		time.Now().UTC(),
	)

	var blob Blob
	err := res.Scan(
		&blob.Id,
		&blob.Filename,
		&blob.ContentType,
		&blob.OwnerId,
		&blob.CreatedAt,
	)

	return blob, err
}

func (db *PgCommunityRepository) GetBlob(id string) (Blob, error) {
	row := db.conn.QueryRow(
		"SELECT id, filename, content_type, owner_id, data, created_at "+
			"FROM media_blobs WHERE id = $1 LIMIT 1",
		id,
	)

	var blob Blob
	err := row.Scan(
		&blob.Id,
		&blob.Filename,
		&blob.ContentType,
		&blob.OwnerId,
		&blob.Data,
		&blob.CreatedAt,
	)

	return blob, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.ExternalId,
		&msg.RoomId,
		&msg.UserEmail,
		&msg.UserName,
		&msg.UserPicture,
		&msg.Content,
		&msg.MessageType,
		&msg.MediaUrl,
		&msg.IsDeleted,
		&msg.CreatedAt,
	)

	return msg, err
}

// Package rooms maps raw user locations onto community chat rooms.
package rooms

import (
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/agrichat/community-chat/internal/database"
)

const GeneralRoomID = "general"

// NormalizeRoomID derives the canonical room id for a raw location
// string: first comma segment, lowercased, non-alphanumerics stripped,
// whitespace runs collapsed to a single dash. Unparseable input falls
// back to the general room.
func NormalizeRoomID(location string) string {
	city, _, _ := strings.Cut(location, ",")
	city = strings.ToLower(strings.TrimSpace(city))

	var b strings.Builder
	for _, r := range city {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	id := strings.Join(strings.Fields(b.String()), "-")
	if id == "" {
		return GeneralRoomID
	}
	return id
}

// DisplayName derives the human-readable room name from a raw location.
func DisplayName(location string) string {
	city, _, _ := strings.Cut(location, ",")
	city = strings.TrimSpace(city)
	if city == "" || NormalizeRoomID(location) == GeneralRoomID {
		city = "General"
	}
	return city + " Farmers"
}

// Directory resolves locations to persistent room records and keeps the
// advisory member counters in step when a user's room changes.
type Directory struct {
	db  database.CommunityRepository
	log *log.Logger
}

func NewDirectory(db database.CommunityRepository, logger *log.Logger) *Directory {
	return &Directory{db: db, log: logger}
}

// Resolve returns the room for a location, creating it on first use.
// Repeated calls with equivalent input return the same room; the upsert
// underneath makes concurrent first-time resolution race-free.
func (d *Directory) Resolve(location string) (database.Room, error) {
	roomId := NormalizeRoomID(location)

	room, err := d.db.UpsertRoom(roomId, DisplayName(location))
	if err != nil {
		return database.Room{}, fmt.Errorf("upsert room %q: %w", roomId, err)
	}

	return room, nil
}

// ReassignMembership moves the user's room pointer to the room for their
// current location, adjusting both member counters. The two counter
// updates are not transactional; a crash in between leaves advisory
// drift, which nothing downstream depends on for correctness.
func (d *Directory) ReassignMembership(user database.User) (database.Room, error) {
	room, err := d.Resolve(user.Location)
	if err != nil {
		return database.Room{}, err
	}

	if user.CommunityRoom == room.RoomId {
		return room, nil
	}

	if user.CommunityRoom != "" {
		if err := d.db.DecrementMemberCount(user.CommunityRoom); err != nil {
			d.log.Printf("decrement member count for %q: %v", user.CommunityRoom, err)
		}
	}

	if err := d.db.IncrementMemberCount(room.RoomId); err != nil {
		d.log.Printf("increment member count for %q: %v", room.RoomId, err)
	}

	if err := d.db.UpdateAccountRoom(user.Id, room.RoomId); err != nil {
		return database.Room{}, fmt.Errorf("update account room: %w", err)
	}

	updated, err := d.db.GetRoom(room.RoomId)
	if err != nil {
		// the reassignment itself succeeded; serve the stale counter
		return room, nil
	}

	return updated, nil
}

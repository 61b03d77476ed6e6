package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agrichat/community-chat/internal/chat"
	"github.com/agrichat/community-chat/internal/database"
	"github.com/agrichat/community-chat/internal/stats"
	"github.com/agrichat/community-chat/internal/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Location string `json:"location"`
	Picture  string `json:"picture"`
}

type RoomResponse struct {
	types.Room
	OnlineCount int `json:"online_count"`
}

type OnlineResponse struct {
	OnlineCount int                `json:"online_count"`
	Users       []types.OnlineUser `json:"users"`
}

type UploadResponse struct {
	Url         string `json:"url"`
	MediaType   string `json:"media_type"`
	ContentType string `json:"content_type"`
}

const (
	maxImageUploadBytes = 10 << 20
	maxVideoUploadBytes = 50 << 20
)

// Application-defined close code sent when a websocket connection
// presents a missing or invalid token.
const closeCodeAuthFailure = 4001

func (s *CommunityApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func toApiUser(user database.User) types.User {
	return types.User{
		Id:            user.Id,
		EmailAddress:  user.EmailAddress,
		Name:          user.Name,
		Picture:       user.Picture,
		Location:      user.Location,
		CommunityRoom: user.CommunityRoom,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func (s *CommunityApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Email == "" || req.Name == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		EmailAddress: req.Email,
		Name:         req.Name,
		Picture:      req.Picture,
		Location:     req.Location,
		PasswordHash: pwdHash,
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toApiUser(newUser))
}

func (s *CommunityApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	// the token is also returned in the body so websocket clients can
	// pass it as a query parameter
	s.writeJson(w, http.StatusOK, LoginResponse{
		User:  toApiUser(dbUser),
		Token: token,
	})
}

func (s *CommunityApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toApiUser(user))
}

func (s *CommunityApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

// myRoom resolves the caller's community room from their stored
// location, moving their membership if the location changed since the
// last visit.
func (s *CommunityApp) myRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.ReassignMembership(user)
	if err != nil {
		s.log.Println("reassign membership:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, RoomResponse{
		Room: types.Room{
			RoomId:      room.RoomId,
			DisplayName: room.DisplayName,
			MemberCount: room.MemberCount,
		},
		OnlineCount: s.cs.Registry().OnlineCount(room.RoomId),
	})
}

func (s *CommunityApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.cs.Store().List(r.PathValue("roomID"), limit, user.EmailAddress)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *CommunityApp) onlineUsers(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomID")

	users := s.cs.Registry().OnlineUsers(roomId)
	if users == nil {
		users = []types.OnlineUser{}
	}

	s.writeJson(w, http.StatusOK, OnlineResponse{
		OnlineCount: len(users),
		Users:       users,
	})
}

func (s *CommunityApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId := r.PathValue("messageID")
	msg, err := s.cs.Store().SoftDelete(messageId, user.EmailAddress)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, chat.ErrNotAuthor):
			errResp = NewForbiddenError()
		case errors.Is(err, sql.ErrNoRows):
			errResp = NewNotFoundError()
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.MessagesDeleted)
	s.cs.Registry().Broadcast(msg.RoomId, chat.MessageDeletedEvent(msg.Id))

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *CommunityApp) uploadMedia(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// cap the whole request body at the video ceiling plus slack for
	// the multipart framing
	r.Body = http.MaxBytesReader(w, r.Body, maxVideoUploadBytes+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		var errResp *ApiError
		if errors.As(err, &maxErr) {
			errResp = NewPayloadTooLargeError()
		} else {
			errResp = NewBadRequestError()
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		var errResp *ApiError
		if errors.As(err, &maxErr) {
			errResp = NewPayloadTooLargeError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// trust the sniffed type over the client-supplied Content-Type
	mtype := mimetype.Detect(data)

	var mediaType string
	var limit int
	switch {
	case strings.HasPrefix(mtype.String(), "image/"):
		mediaType = "image"
		limit = maxImageUploadBytes
	case strings.HasPrefix(mtype.String(), "video/"):
		mediaType = "video"
		limit = maxVideoUploadBytes
	default:
		errResp := NewUnsupportedMediaTypeError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if len(data) > limit {
		errResp := NewPayloadTooLargeError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	blobId := uuid.NewString()
	_, err = s.db.CreateBlob(database.CreateBlobParams{
		Id:          blobId,
		Filename:    header.Filename,
		ContentType: mtype.String(),
		OwnerId:     userId,
		Data:        data,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.MediaUploads)

	s.writeJson(w, http.StatusCreated, UploadResponse{
		Url:         "/api/community/media/" + blobId,
		MediaType:   mediaType,
		ContentType: mtype.String(),
	})
}

func (s *CommunityApp) serveMedia(w http.ResponseWriter, r *http.Request) {
	blob, err := s.db.GetBlob(r.PathValue("blobID"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(blob.Data)
}

func (s *CommunityApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("healthz:", err)
		errResp := NewServiceUnavailableError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *CommunityApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	// authentication happens after the upgrade so the failure reaches
	// the client as a close frame it can distinguish from network errors
	user, err := s.wsUser(r.URL.Query().Get("token"))
	if err != nil {
		s.log.Println("websocket auth:", err)
		msg := websocket.FormatCloseMessage(closeCodeAuthFailure, "authentication failed")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	client := chat.NewClient(chat.Identity{
		Email:   user.EmailAddress,
		Name:    user.Name,
		Picture: user.Picture,
	}, r.PathValue("roomID"), conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func (s *CommunityApp) wsUser(token string) (database.User, error) {
	if token == "" || token == tokenNull || token == tokenUndefined {
		return database.User{}, errors.New("missing token")
	}

	userId, err := s.extractUserIdFromToken(token)
	if err != nil {
		return database.User{}, err
	}

	return s.db.GetAccountById(userId)
}

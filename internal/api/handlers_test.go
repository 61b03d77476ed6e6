package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agrichat/community-chat/internal/chat"
	"github.com/agrichat/community-chat/internal/config"
	"github.com/agrichat/community-chat/internal/database"
	"github.com/agrichat/community-chat/internal/moderation"
	"github.com/agrichat/community-chat/internal/rooms"
	"github.com/agrichat/community-chat/internal/stats"
	"github.com/agrichat/community-chat/internal/testutil"
	"github.com/agrichat/community-chat/internal/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestApp builds a CommunityApp backed by a real chat server and room
// directory over the given mocks. The chat server and the app register
// six metrics between them.
func newTestApp(t *testing.T, mockRepo *database.MockCommunityRepository, su *stats.MockStatsUpdater) *CommunityApp {
	t.Helper()

	su.On("RegisterMetric", mock.Anything).Times(6)

	logger := testutil.TestLogger(t)
	cs, err := chat.NewChatServer(logger, mockRepo, moderation.NewGate(nil, time.Second, true, logger), su)
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}

	return NewCommunityApp(
		http.NewServeMux(),
		logger,
		cs,
		mockRepo,
		rooms.NewDirectory(mockRepo, logger),
		su,
		&config.Config{SigningKey: []byte("test-signing-key")},
	)
}

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	return buf, mw.FormDataContentType()
}

func Test_healthz(t *testing.T) {
	tcases := []struct {
		name         string
		mockErr      error
		expectedCode int
	}{
		{
			name:         "successful health check",
			mockErr:      nil,
			expectedCode: http.StatusOK,
		},
		{
			name:         "failed health check",
			mockErr:      errors.New("db error"),
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)

			mockRepo.On("Ping").Return(tc.mockErr).Once()
			app := newTestApp(t, mockRepo, su)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthz(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Name:         "New Farmer",
		EmailAddress: "newuser@example.com",
		Location:     "Pune, Maharashtra",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	tcases := []struct {
		name        string
		body        any
		success     bool
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Name:     expectedUser.Name,
				Password: "password",
				Location: expectedUser.Location,
			},
			success:  true,
			mockUser: expectedUser,
		},
		{
			name:        "failed with invalid json body",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing name",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing email",
			body: RegisterRequest{
				Name:     expectedUser.Name,
				Password: "password",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing password",
			body: RegisterRequest{
				Email: expectedUser.EmailAddress,
				Name:  expectedUser.Name,
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with db error",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Name:     expectedUser.Name,
				Password: "password",
				Location: expectedUser.Location,
			},
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				regReq, ok := tc.body.(RegisterRequest)
				if !ok {
					t.Fatalf("unsupported request body type: %T", tc.body)
				}
				mockRepo.On("CreateAccount", mock.MatchedBy(func(req database.CreateAccountParams) bool {
					return req.Name == regReq.Name &&
						req.EmailAddress == regReq.Email &&
						req.Location == regReq.Location &&
						verifyPassword(req.PasswordHash, regReq.Password)
				})).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, su)

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(v))
			case RegisterRequest:
				body, err := json.Marshal(v)
				assert.NoError(t, err, "failed to marshal request body")
				req = httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBuffer(body))
			default:
				t.Fatalf("unsupported request body type: %T", v)
			}

			rr := httptest.NewRecorder()
			app.createAccount(rr, req)

			if tc.success {
				assert.Equal(t, http.StatusCreated, rr.Code)

				var user types.User
				err := json.NewDecoder(rr.Body).Decode(&user)
				assert.NoError(t, err, "failed to decode response body")
				assert.Equal(t, expectedUser.Id, user.Id)
				assert.Equal(t, expectedUser.EmailAddress, user.EmailAddress)
				assert.Equal(t, expectedUser.Name, user.Name)
				assert.Equal(t, expectedUser.Location, user.Location)
			} else {
				var apiErr ApiError
				err := json.NewDecoder(rr.Body).Decode(&apiErr)
				assert.NoError(t, err, "failed to decode ApiError response")
				assert.Equal(t, apiErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError to match")
			}
		})
	}
}

func Test_login(t *testing.T) {
	passwordHash, err := hashPassword("password")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	mockUser := database.User{
		Id:           1,
		Name:         "Test Farmer",
		EmailAddress: "testuser@example.com",
		Location:     "Pune, Maharashtra",
		PasswordHash: passwordHash,
	}

	t.Run("successful login sets cookie and returns token", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		mockRepo.On("GetAccountByEmail", mockUser.EmailAddress).Return(mockUser, nil).Once()

		app := newTestApp(t, mockRepo, su)

		body, err := json.Marshal(LoginRequest{Email: mockUser.EmailAddress, Password: "password"})
		assert.NoError(t, err, "failed to marshal request body")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBuffer(body))
		app.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		cookie := findCookie(rr, tokenCookieKey)
		assert.NotNil(t, cookie, "expected token cookie to be set")
		assert.True(t, cookie.HttpOnly, "expected cookie to be http only")

		var resp LoginResponse
		err = json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err, "failed to decode response body")
		assert.Equal(t, mockUser.EmailAddress, resp.User.EmailAddress)
		assert.NotEmpty(t, resp.Token, "expected token in response body")

		userId, err := app.extractUserIdFromToken(resp.Token)
		assert.NoError(t, err, "expected returned token to verify")
		assert.Equal(t, mockUser.Id, userId)
	})

	tcases := []struct {
		name        string
		body        any
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with missing credentials",
			body:        LoginRequest{Email: mockUser.EmailAddress},
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails when user not found",
			body:        LoginRequest{Email: mockUser.EmailAddress, Password: "password"},
			mockErr:     sql.ErrNoRows,
			expectedErr: NewNotFoundError(),
		},
		{
			name:        "fails with wrong password",
			body:        LoginRequest{Email: mockUser.EmailAddress, Password: "wrong"},
			mockUser:    mockUser,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "fails with db error",
			body:        LoginRequest{Email: mockUser.EmailAddress, Password: "password"},
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				mockRepo.On("GetAccountByEmail", mockUser.EmailAddress).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, su)

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(v))
			case LoginRequest:
				body, err := json.Marshal(v)
				assert.NoError(t, err, "failed to marshal request body")
				req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBuffer(body))
			default:
				t.Fatalf("unsupported request body type: %T", v)
			}

			rr := httptest.NewRecorder()
			app.login(rr, req)

			var apiErr ApiError
			err := json.NewDecoder(rr.Body).Decode(&apiErr)
			assert.NoError(t, err, "failed to decode ApiError response")
			assert.Equal(t, apiErr.StatusCode, rr.Code)
			assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError to match")
		})
	}
}

func Test_session(t *testing.T) {
	mockUser := database.User{
		Id:            1,
		Name:          "Test Farmer",
		EmailAddress:  "testuser@example.com",
		Location:      "Pune, Maharashtra",
		CommunityRoom: "pune",
	}

	tcases := []struct {
		name        string
		userId      int
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:     "returns the current user",
			userId:   mockUser.Id,
			mockUser: mockUser,
		},
		{
			name:        "fails without user id in context",
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "fails when user not found",
			userId:      mockUser.Id,
			mockErr:     sql.ErrNoRows,
			expectedErr: NewNotFoundError(),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				mockRepo.On("GetAccountById", tc.userId).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, su)

			req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
			if tc.userId > 0 {
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}

			rr := httptest.NewRecorder()
			app.session(rr, req)

			if tc.expectedErr == nil {
				assert.Equal(t, http.StatusOK, rr.Code)

				var user types.User
				err := json.NewDecoder(rr.Body).Decode(&user)
				assert.NoError(t, err, "failed to decode response body")
				assert.Equal(t, mockUser.EmailAddress, user.EmailAddress)
				assert.Equal(t, mockUser.CommunityRoom, user.CommunityRoom)
			} else {
				var apiErr ApiError
				err := json.NewDecoder(rr.Body).Decode(&apiErr)
				assert.NoError(t, err, "failed to decode ApiError response")
				assert.Equal(t, apiErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError to match")
			}
		})
	}
}

func Test_logout(t *testing.T) {
	mockRepo := &database.MockCommunityRepository{}
	defer mockRepo.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	app := newTestApp(t, mockRepo, su)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookie := findCookie(rr, tokenCookieKey)
	assert.NotNil(t, cookie, "expected token cookie to be overwritten")
	assert.Empty(t, cookie.Value, "expected cookie value to be cleared")
	assert.True(t, cookie.Expires.Before(time.Now()), "expected cookie to be expired")
}

func Test_myRoom(t *testing.T) {
	mockUser := database.User{
		Id:            1,
		Name:          "Test Farmer",
		EmailAddress:  "testuser@example.com",
		Location:      "Pune, Maharashtra",
		CommunityRoom: "pune",
	}
	puneRoom := database.Room{RoomId: "pune", DisplayName: "Pune Farmers", MemberCount: 12}

	t.Run("returns room when membership is unchanged", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()
		mockRepo.On("UpsertRoom", "pune", "Pune Farmers").Return(puneRoom, nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/my-room", nil)
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.myRoom(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp RoomResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err, "failed to decode response body")
		assert.Equal(t, puneRoom.RoomId, resp.RoomId)
		assert.Equal(t, puneRoom.DisplayName, resp.DisplayName)
		assert.Equal(t, puneRoom.MemberCount, resp.MemberCount)
		assert.Zero(t, resp.OnlineCount, "expected no online members")
	})

	t.Run("moves membership when location changed", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		movedUser := mockUser
		movedUser.Location = "Nashik, Maharashtra"
		nashikRoom := database.Room{RoomId: "nashik", DisplayName: "Nashik Farmers", MemberCount: 1}

		mockRepo.On("GetAccountById", movedUser.Id).Return(movedUser, nil).Once()
		mockRepo.On("UpsertRoom", "nashik", "Nashik Farmers").Return(nashikRoom, nil).Once()
		mockRepo.On("DecrementMemberCount", "pune").Return(nil).Once()
		mockRepo.On("IncrementMemberCount", "nashik").Return(nil).Once()
		mockRepo.On("UpdateAccountRoom", movedUser.Id, "nashik").Return(nil).Once()
		mockRepo.On("GetRoom", "nashik").Return(nashikRoom, nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/my-room", nil)
		req = req.WithContext(WithUserId(req.Context(), movedUser.Id))

		rr := httptest.NewRecorder()
		app.myRoom(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp RoomResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err, "failed to decode response body")
		assert.Equal(t, "nashik", resp.RoomId)
	})

	t.Run("fails when reassignment cannot be recorded", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		movedUser := mockUser
		movedUser.Location = "Nashik, Maharashtra"
		nashikRoom := database.Room{RoomId: "nashik", DisplayName: "Nashik Farmers"}

		mockRepo.On("GetAccountById", movedUser.Id).Return(movedUser, nil).Once()
		mockRepo.On("UpsertRoom", "nashik", "Nashik Farmers").Return(nashikRoom, nil).Once()
		mockRepo.On("DecrementMemberCount", "pune").Return(nil).Once()
		mockRepo.On("IncrementMemberCount", "nashik").Return(nil).Once()
		mockRepo.On("UpdateAccountRoom", movedUser.Id, "nashik").Return(errors.New("db error")).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/my-room", nil)
		req = req.WithContext(WithUserId(req.Context(), movedUser.Id))

		rr := httptest.NewRecorder()
		app.myRoom(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func Test_getMessages(t *testing.T) {
	mockUser := database.User{
		Id:           1,
		Name:         "Test Farmer",
		EmailAddress: "testuser@example.com",
	}

	t.Run("returns messages in chronological order", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		// newest first, as the query returns them
		dbMessages := []database.Message{
			{ExternalId: "m2", RoomId: "pune", UserEmail: mockUser.EmailAddress, Content: "second"},
			{ExternalId: "m1", RoomId: "pune", UserEmail: "other@example.com", Content: "first"},
		}

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()
		mockRepo.On("GetRecentMessages", "pune", 0).Return(dbMessages, nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/messages/pune", nil)
		req.SetPathValue("roomID", "pune")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var messages []types.Message
		err := json.NewDecoder(rr.Body).Decode(&messages)
		assert.NoError(t, err, "failed to decode response body")
		assert.Len(t, messages, 2)
		assert.Equal(t, "m1", messages[0].Id, "expected oldest message first")
		assert.False(t, messages[0].IsOwn)
		assert.Equal(t, "m2", messages[1].Id)
		assert.True(t, messages[1].IsOwn, "expected requester's message to be marked own")
	})

	t.Run("passes an explicit limit through", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()
		mockRepo.On("GetRecentMessages", "pune", 10).Return([]database.Message{}, nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/messages/pune?limit=10", nil)
		req.SetPathValue("roomID", "pune")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("fails with invalid limit", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/messages/pune?limit=abc", nil)
		req.SetPathValue("roomID", "pune")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_onlineUsers(t *testing.T) {
	mockUser := database.User{
		Id:           1,
		Name:         "Test Farmer",
		EmailAddress: "testuser@example.com",
	}

	t.Run("empty room", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/online/pune", nil)
		req.SetPathValue("roomID", "pune")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.onlineUsers(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp OnlineResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err, "failed to decode response body")
		assert.Zero(t, resp.OnlineCount)
		assert.Empty(t, resp.Users)
	})

	t.Run("room with connected members", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.ActiveRooms).Once()

		app := newTestApp(t, mockRepo, su)

		c := chat.NewClient(chat.Identity{
			Email: "online@example.com",
			Name:  "Online Farmer",
		}, "pune", nil, app.cs, testutil.TestLogger(t))
		app.cs.Registry().Join("pune", c)

		req := httptest.NewRequest(http.MethodGet, "/api/community/online/pune", nil)
		req.SetPathValue("roomID", "pune")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.onlineUsers(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp OnlineResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err, "failed to decode response body")
		assert.Equal(t, 1, resp.OnlineCount)
		assert.Len(t, resp.Users, 1)
		assert.Equal(t, "online@example.com", resp.Users[0].Email)
	})
}

func Test_deleteMessage(t *testing.T) {
	mockUser := database.User{
		Id:           1,
		Name:         "Test Farmer",
		EmailAddress: "testuser@example.com",
	}
	mockMessage := database.Message{
		Id:         5,
		ExternalId: "m1",
		RoomId:     "pune",
		UserEmail:  mockUser.EmailAddress,
		Content:    "hello",
	}

	t.Run("author deletes own message", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.MessagesDeleted).Once()

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()
		mockRepo.On("GetMessage", "m1").Return(mockMessage, nil).Once()
		mockRepo.On("SoftDeleteMessage", "m1", "[Message deleted]").Return(nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodDelete, "/api/community/message/m1", nil)
		req.SetPathValue("messageID", "m1")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("non-author is forbidden", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		otherMessage := mockMessage
		otherMessage.UserEmail = "other@example.com"

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()
		mockRepo.On("GetMessage", "m1").Return(otherMessage, nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodDelete, "/api/community/message/m1", nil)
		req.SetPathValue("messageID", "m1")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "SoftDeleteMessage", mock.Anything, mock.Anything)
	})

	t.Run("missing message is not found", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()
		mockRepo.On("GetMessage", "missing").Return(database.Message{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodDelete, "/api/community/message/missing", nil)
		req.SetPathValue("messageID", "missing")
		req = req.WithContext(WithUserId(req.Context(), mockUser.Id))

		rr := httptest.NewRecorder()
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_uploadMedia(t *testing.T) {
	pngHeader := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

	t.Run("accepts an image and stores a blob", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.MediaUploads).Once()

		data := append(pngHeader, bytes.Repeat([]byte{0x00}, 64)...)

		mockRepo.On("CreateBlob", mock.MatchedBy(func(params database.CreateBlobParams) bool {
			return params.Filename == "photo.png" &&
				params.ContentType == "image/png" &&
				params.OwnerId == 1 &&
				len(params.Data) == len(data)
		})).Return(database.Blob{}, nil).Once()

		app := newTestApp(t, mockRepo, su)

		body, contentType := multipartBody(t, "file", "photo.png", data)
		req := httptest.NewRequest(http.MethodPost, "/api/community/upload", body)
		req.Header.Set("Content-Type", contentType)
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.uploadMedia(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp UploadResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err, "failed to decode response body")
		assert.True(t, strings.HasPrefix(resp.Url, "/api/community/media/"), "expected media URL, got %q", resp.Url)
		assert.Equal(t, "image", resp.MediaType)
		assert.Equal(t, "image/png", resp.ContentType)
	})

	t.Run("rejects unsupported content", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, mockRepo, su)

		body, contentType := multipartBody(t, "file", "notes.txt", []byte("just some plain text"))
		req := httptest.NewRequest(http.MethodPost, "/api/community/upload", body)
		req.Header.Set("Content-Type", contentType)
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.uploadMedia(rr, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
		mockRepo.AssertNotCalled(t, "CreateBlob", mock.Anything)
	})

	t.Run("rejects an image over the size ceiling", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, mockRepo, su)

		data := append(pngHeader, make([]byte, maxImageUploadBytes)...)
		body, contentType := multipartBody(t, "file", "huge.png", data)
		req := httptest.NewRequest(http.MethodPost, "/api/community/upload", body)
		req.Header.Set("Content-Type", contentType)
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.uploadMedia(rr, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		mockRepo.AssertNotCalled(t, "CreateBlob", mock.Anything)
	})

	t.Run("fails without a file part", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, mockRepo, su)

		body, contentType := multipartBody(t, "attachment", "photo.png", pngHeader)
		req := httptest.NewRequest(http.MethodPost, "/api/community/upload", body)
		req.Header.Set("Content-Type", contentType)
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.uploadMedia(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_serveMedia(t *testing.T) {
	t.Run("streams a stored blob", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		blob := database.Blob{
			Id:          "blob-1",
			Filename:    "photo.png",
			ContentType: "image/png",
			Data:        []byte{0x89, 0x50, 0x4e, 0x47},
		}
		mockRepo.On("GetBlob", "blob-1").Return(blob, nil).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/media/blob-1", nil)
		req.SetPathValue("blobID", "blob-1")

		rr := httptest.NewRecorder()
		app.serveMedia(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.Equal(t, blob.Data, rr.Body.Bytes())
	})

	t.Run("missing blob is not found", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		mockRepo.On("GetBlob", "missing").Return(database.Blob{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, su)

		req := httptest.NewRequest(http.MethodGet, "/api/community/media/missing", nil)
		req.SetPathValue("blobID", "missing")

		rr := httptest.NewRecorder()
		app.serveMedia(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_serveWs(t *testing.T) {
	mockUser := database.User{
		Id:           1,
		Name:         "Test Farmer",
		EmailAddress: "testuser@example.com",
	}

	newWsServer := func(app *CommunityApp) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.SetPathValue("roomID", "pune")
			app.serveWs(w, r)
		}))
	}

	t.Run("successful connection announces the join", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		su.On("Incr", stats.ActiveConnections).Once()
		su.On("Incr", stats.ActiveRooms).Once()
		su.On("Decr", mock.Anything).Maybe()

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()

		app := newTestApp(t, mockRepo, su)

		srv := newWsServer(app)
		defer srv.Close()

		token, err := app.createJwtForSession(mockUser.Id, defaultJwtExpiration)
		if err != nil {
			t.Fatalf("failed to create jwt token: %v", err)
		}

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/community/ws/pune?token=" + token
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(time.Second))
		var evt map[string]any
		err = conn.ReadJSON(&evt)
		assert.NoError(t, err, "expected a join announcement frame")
		assert.Equal(t, "user_joined", evt["type"])
		assert.Equal(t, mockUser.Name, evt["user_name"])
	})

	badTokens := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "null sentinel token", token: "null"},
		{name: "undefined sentinel token", token: "undefined"},
		{name: "garbage token", token: "not-a-jwt"},
	}

	for _, tc := range badTokens {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)

			app := newTestApp(t, mockRepo, su)

			srv := newWsServer(app)
			defer srv.Close()

			wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/community/ws/pune"
			if tc.token != "" {
				wsURL = fmt.Sprintf("%s?token=%s", wsURL, tc.token)
			}

			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			assert.NoError(t, err, "expected the upgrade itself to succeed")
			defer conn.Close()

			// the auth failure arrives as an application close frame
			conn.SetReadDeadline(time.Now().Add(time.Second))
			_, _, err = conn.ReadMessage()
			var closeErr *websocket.CloseError
			assert.ErrorAs(t, err, &closeErr, "expected a close frame")
			assert.Equal(t, closeCodeAuthFailure, closeErr.Code)
		})
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goevery/chatrelay/internal/auth"
	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/handler"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event broadcaster.Event) (broadcaster.Outcome, error) {
	args := m.Called(event)

	return args.Get(0).(broadcaster.Outcome), args.Error(1)
}

type fakeDirectory map[string][]string

func (d fakeDirectory) Contacts(ctx context.Context, userId string) ([]string, error) {
	return d[userId], nil
}

type fakePresence map[string]bool

func (p fakePresence) Lookup(ctx context.Context, userIds []string) (map[string]bool, error) {
	return p, nil
}

func newRESTTestServer(t *testing.T, dispatcher handler.Dispatcher) *httptest.Server {
	logger, _ := zap.NewDevelopment()
	authenticator := auth.NewAuthenticator("test-secret", []string{"test-api-key"})

	rooms := broadcaster.NewRoomIndex()
	registry := broadcaster.NewConnectionRegistry(rooms)
	eventRouter := broadcaster.NewRouter(logger, registry, rooms, nil)
	rooms.Join("chat1", "conn-1")

	validator := handler.NewValidator()
	pushHandler := handler.NewPushHandler(validator, dispatcher)
	roomHandler := handler.NewRoomHandler(validator, eventRouter)
	contactsHandler := handler.NewContactsHandler(
		validator,
		fakeDirectory{"u1": {"u2", "u3"}},
		fakePresence{"u2": true},
	)

	restServer := NewRESTServer(logger, authenticator, pushHandler, roomHandler, contactsHandler, eventRouter)

	router := mux.NewRouter()
	restServer.Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server
}

func doRequest(t *testing.T, method string, url string, token string, body string) *http.Response {
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestRESTServer_Push(t *testing.T) {
	dispatcher := &mockDispatcher{}
	server := newRESTTestServer(t, dispatcher)

	t.Run("valid api key", func(t *testing.T) {
		body := `{"kind":"message:send","payload":{"chatId":"chat1","text":"from backend"}}`

		dispatcher.On("Dispatch", mock.MatchedBy(func(event broadcaster.Event) bool {
			return event.Kind == broadcaster.KindMessageSend &&
				event.RoomId == "chat1" &&
				event.Origin == "" &&
				string(event.Payload) == `{"chatId":"chat1","text":"from backend"}`
		})).Return(broadcaster.Outcome{
			Kind:       broadcaster.KindMessageSend,
			RoomId:     "chat1",
			MessageId:  "m1",
			Deliveries: []broadcaster.Delivery{{ConnectionId: "conn-1"}},
		}, nil).Once()

		resp := doRequest(t, "POST", server.URL+"/push", "test-api-key", body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var pushResponse handler.EventResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&pushResponse))
		assert.Equal(t, handler.EventResponse{RoomId: "chat1", MessageId: "m1", Delivered: 1}, pushResponse)
		dispatcher.AssertExpectations(t)
	})

	t.Run("jwt limited to other rooms", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":             "backend",
			"exp":             time.Now().Add(time.Hour).Unix(),
			"iat":             time.Now().Unix(),
			"aud":             "chatrelay",
			"authorizedRooms": []string{"chat2"},
			"scope":           []string{"publish"},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		resp := doRequest(t, "POST", server.URL+"/push", tokenString, `{"kind":"typing:start","payload":{"chatId":"chat1"}}`)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("membership kinds cannot be pushed", func(t *testing.T) {
		resp := doRequest(t, "POST", server.URL+"/push", "test-api-key", `{"kind":"chat:join","payload":{"chatId":"chat1"}}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid body", func(t *testing.T) {
		resp := doRequest(t, "POST", server.URL+"/push", "test-api-key", `nope`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid api key", func(t *testing.T) {
		resp := doRequest(t, "POST", server.URL+"/push", "invalid-api-key", `{"kind":"message:send","payload":{"chatId":"chat1"}}`)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("preflight", func(t *testing.T) {
		resp := doRequest(t, "OPTIONS", server.URL+"/push", "", "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestRESTServer_Inspection(t *testing.T) {
	server := newRESTTestServer(t, &mockDispatcher{})

	t.Run("health", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/health", "", "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("room members", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/rooms/chat1", "test-api-key", "")

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var roomResponse handler.RoomResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&roomResponse))
		assert.Equal(t, handler.RoomResponse{RoomId: "chat1", Members: []string{"conn-1"}}, roomResponse)
	})

	t.Run("empty room", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/rooms/chat9", "test-api-key", "")

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("stats", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/stats", "test-api-key", "")

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats broadcaster.Stats
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Equal(t, 1, stats.Rooms)
	})

	t.Run("contact presence", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/users/u1/contacts/presence", "test-api-key", "")

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var contactsResponse handler.ContactsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&contactsResponse))
		assert.Equal(t, []handler.ContactPresence{
			{UserId: "u2", Online: true},
			{UserId: "u3", Online: false},
		}, contactsResponse.Contacts)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/stats", "", "")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

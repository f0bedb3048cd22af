package handler

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/chat"
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/connection"
	"adoptchat/backend/internal/dispatch"
	"adoptchat/backend/internal/localization"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/notify"
	"adoptchat/backend/internal/process"
	"adoptchat/backend/internal/storage/storagetest"
	"adoptchat/backend/internal/unread"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type env struct {
	t      *testing.T
	router *gin.Engine
	store  *storagetest.MemStore
}

func setup(t *testing.T, withStaff bool) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storagetest.New()
	store.AddUser("user-1", "Iryna", models.RoleUser)
	store.AddUser("user-2", "Taras", models.RoleUser)
	if withStaff {
		store.AddUser("staff-1", "Olena", models.RoleStaff)
	}

	loc, err := localization.Bundled()
	require.NoError(t, err)

	rooms := connection.NewOrchestrator(store)
	d := dispatch.NewDispatcher(rooms, store, store, nil)
	h := &Handler{
		Chat:           chat.NewService(rooms, store, store, nil),
		Dispatcher:     d,
		Unread:         unread.NewService(store),
		Process:        process.NewService(store, d),
		Registrar:      notify.NewRegistrar(store),
		Storage:        store,
		Localizer:      loc,
		Secret:         secret,
		TokenTTLMinute: 60,
	}
	r := gin.New()
	h.Register(r, nil)
	return &env{t: t, router: r, store: store}
}

func (e *env) token(userID string, role models.Role) string {
	tok, err := auth.GenerateAccessToken(userID, role, secret, 60)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path, userID string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		u, err := e.store.GetUserByID(req.Context(), userID)
		require.NoError(e.t, err)
		req.Header.Set("Authorization", "Bearer "+e.token(u.ID, u.Role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func unreadOf(t *testing.T, e *env, userID string) float64 {
	t.Helper()
	w := e.do(http.MethodGet, "/api/v1/unread", userID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["unread"].(float64)
}

func TestHealthAndAuth(t *testing.T) {
	e := setup(t, true)

	w := e.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/api/v1/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterUser(t *testing.T) {
	e := setup(t, true)

	w := e.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "  Marta "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	claims, err := auth.ParseAccessToken(body["token"].(string), secret)
	require.NoError(t, err)

	u, err := e.store.GetUserByID(t.Context(), claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Marta", u.Username)
	assert.Equal(t, models.RoleUser, u.Role)

	w = e.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatFlow(t *testing.T) {
	e := setup(t, true)
	roomID := connection.RoomID("user-1", "staff-1")

	w := e.do(http.MethodPost, "/api/v1/messages", "user-1", gin.H{"receiver_id": "staff-1", "body": "Hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msgID := decode(t, w)["messageId"].(string)

	assert.Equal(t, float64(1), unreadOf(t, e, "staff-1"))
	assert.Equal(t, float64(0), unreadOf(t, e, "user-1"))

	w = e.do(http.MethodGet, "/api/v1/rooms", "staff-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rooms := decode(t, w)["rooms"].([]interface{})
	require.Len(t, rooms, 1)
	assert.Equal(t, roomID, rooms[0].(map[string]interface{})["room_id"])

	w = e.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/read", "staff-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["marked"])
	assert.Equal(t, float64(0), unreadOf(t, e, "staff-1"))

	w = e.do(http.MethodPatch, "/api/v1/messages/"+msgID, "staff-1", gin.H{"body": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPatch, "/api/v1/messages/"+msgID, "user-1", gin.H{"body": "Hello there"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["edited"])

	w = e.do(http.MethodDelete, "/api/v1/messages/"+msgID+"?scope=everyone", "user-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/api/v1/rooms/"+roomID+"/messages", "staff-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode(t, w)["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, config.DeletedMessageNotice, msgs[0].(map[string]interface{})["message"])

	w = e.do(http.MethodDelete, "/api/v1/messages/"+msgID+"?scope=nobody", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomAccess(t *testing.T) {
	e := setup(t, true)
	roomID := connection.RoomID("user-1", "staff-1")

	w := e.do(http.MethodPost, "/api/v1/messages", "user-1", gin.H{"receiver_id": "staff-1", "body": "Hi"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, "/api/v1/rooms/"+roomID+"/messages", "user-2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, chat.KeyForbidden, decode(t, w)["error"])

	w = e.do(http.MethodGet, "/api/v1/rooms/missing/messages", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodDelete, "/api/v1/rooms/"+roomID, "staff-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, e.store.RoomCount())
}

func TestSendErrorsAreLocalized(t *testing.T) {
	e := setup(t, true)

	w := e.do(http.MethodPost, "/api/v1/messages", "user-1", gin.H{"receiver_id": "staff-1", "body": "  "}, "Accept-Language", "uk-UA,uk;q=0.9")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, chat.KeyEmptyMessage, body["error"])
	assert.Equal(t, "Повідомлення не може бути порожнім.", body["message"])

	w = e.do(http.MethodPost, "/api/v1/messages", "user-1", gin.H{"receiver_id": "user-2", "body": "hey"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, chat.KeyInvalidPair, decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/v1/messages", "user-1", gin.H{"receiver_id": "ghost", "body": "hey"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, chat.KeyUnknownUser, decode(t, w)["error"])
}

func TestPostEvent(t *testing.T) {
	e := setup(t, true)
	donation := gin.H{"type": "item_donation_submitted", "user_id": "user-1", "username": "Iryna", "donation_id": "d-1", "category": "toys"}

	w := e.do(http.MethodPost, "/api/v1/events", "user-1", donation)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["dispatched"])
	msg := body["message"].(map[string]interface{})
	assert.Equal(t, "Your toys donation was submitted", msg["message"])
	assert.NotContains(t, msg, "staffMessage")

	assert.Equal(t, float64(1), unreadOf(t, e, "user-1"))
	assert.Equal(t, float64(1), unreadOf(t, e, "staff-1"))

	w = e.do(http.MethodPost, "/api/v1/events", "user-2", donation)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/v1/events", "staff-1", gin.H{"type": "donation_approved", "user_id": "user-1", "donation_id": "d-1", "category": "toys"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/v1/events", "staff-1", gin.H{"type": "step_completed", "user_id": "user-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "event.invalid", decode(t, w)["error"])
}

func TestPostEvent_StaffSelection(t *testing.T) {
	e := setup(t, true)
	event := func(staffID string) gin.H {
		return gin.H{"type": "item_donation_submitted", "user_id": "user-1", "username": "Iryna", "donation_id": "d-1", "category": "toys", "staff_id": staffID}
	}

	w := e.do(http.MethodPost, "/api/v1/events", "user-1", event("staff-1"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, staffID := range []string{"user-2", "user-1", "ghost"} {
		w = e.do(http.MethodPost, "/api/v1/events", "staff-1", event(staffID))
		assert.Equal(t, http.StatusBadRequest, w.Code, staffID)
		assert.Equal(t, chat.KeyInvalidPair, decode(t, w)["error"])
	}
	assert.Equal(t, 0, e.store.RoomCount())

	w = e.do(http.MethodPost, "/api/v1/events", "staff-1", event("staff-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msg := decode(t, w)["message"].(map[string]interface{})
	assert.Equal(t, "Iryna submitted a toys donation", msg["message"])
	assert.Equal(t, connection.RoomID("user-1", "staff-1"), msg["roomId"])
}

func TestPostEventWithoutStaff(t *testing.T) {
	e := setup(t, false)

	w := e.do(http.MethodPost, "/api/v1/events", "user-1", gin.H{"type": "fund_donation_submitted", "user_id": "user-1", "donation_id": "d-2", "amount": 250})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["dispatched"])
	assert.Equal(t, 0, e.store.RoomCount())
}

func TestProcessRoutes(t *testing.T) {
	e := setup(t, true)

	w := e.do(http.MethodGet, "/api/v1/process", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/v1/process/start", "user-1", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["current_step"])

	w = e.do(http.MethodPost, "/api/v1/process/start", "user-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "process.already_started", decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/v1/process/user-1/steps/2/complete", "user-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/v1/process/user-1/steps/3/complete", "staff-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/api/v1/process/user-1/steps/x/complete", "staff-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/v1/process/user-1/steps/2/complete", "staff-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(3), decode(t, w)["current_step"])
}

func TestDevicesAndTelegramLink(t *testing.T) {
	e := setup(t, true)

	w := e.do(http.MethodPost, "/api/v1/devices", "user-1", gin.H{"platform": "telegram", "token": "4242"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	tokens, err := e.store.ListDeviceTokens(t.Context(), "user-1", models.PlatformTelegram)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].NotificationsEnabled)

	w = e.do(http.MethodPost, "/api/v1/devices", "user-1", gin.H{"platform": "fax", "token": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/v1/auth/telegram-link", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	claims, err := auth.ParseLinkToken(decode(t, w)["link_token"].(string), secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

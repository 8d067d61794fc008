package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/config"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/abhimm5/chatapp/internal/infra/ratelimit"
	"github.com/abhimm5/chatapp/internal/testutil"
	"github.com/abhimm5/chatapp/internal/testutil/apptest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	env    *apptest.Env
	router *gin.Engine
}

func newServer(t *testing.T, limiter ratelimit.Limiter, maxBytes int64) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := apptest.New(t, testutil.NewRecorder())
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		StaticPath: t.TempDir(),
		Upload:     config.UploadConfig{MaxBytes: maxBytes},
	}
	r := SetupRouter(context.Background(), cfg, Deps{
		Orch:    env.Orch,
		Avatars: env.Avatars.HTTP(),
		Limiter: limiter,
	})
	return &server{env: env, router: r}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, username, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if username != "" {
		require.NoError(t, mw.WriteField("username", username))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("avatar", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/uploadAvatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestListRooms(t *testing.T) {
	s := newServer(t, nil, 0)
	ctx := context.Background()
	id, err := s.env.Orch.Register(ctx, app.Registration{Username: "alice", ConnectionID: "c1"})
	require.NoError(t, err)
	_, err = s.env.Orch.RandomConnect(ctx, id.Username, 3)
	require.NoError(t, err)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got core.RoomList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, core.EventRoomList, got.Type)
	require.Len(t, got.Rooms, 1)
	assert.Equal(t, 3, got.Rooms[0].Capacity)
	assert.Equal(t, 1, got.Rooms[0].MemberCount)
	assert.Equal(t, "alice", got.Rooms[0].Members[0].Username)
}

func TestGetRoom(t *testing.T) {
	s := newServer(t, nil, 0)
	ctx := context.Background()
	_, err := s.env.Orch.Register(ctx, app.Registration{Username: "alice", ConnectionID: "c1"})
	require.NoError(t, err)
	m, err := s.env.Orch.RandomConnect(ctx, "alice", 0)
	require.NoError(t, err)
	require.NoError(t, s.env.Orch.Heartbeat(ctx, "c1", m.Room.Name))

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/rooms/"+string(m.Room.Name), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		RoomName      domain.RoomName `json:"roomName"`
		LastHeartbeat *time.Time      `json:"lastHeartbeat"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, m.Room.Name, got.RoomName)
	assert.NotNil(t, got.LastHeartbeat)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/rooms/room_missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadAvatar(t *testing.T) {
	s := newServer(t, nil, 0)
	_, err := s.env.Orch.Register(context.Background(), app.Registration{Username: "alice", ConnectionID: "c1"})
	require.NoError(t, err)

	w := s.do(uploadRequest(t, "alice", "me.png", []byte("png-bytes")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got struct {
		ProfilePic string `json:"profilePic"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Regexp(t, `^/avatars/.+\.png$`, got.ProfilePic)

	id, err := s.env.Orch.Registry.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, got.ProfilePic, id.AvatarRef)

	w = s.do(httptest.NewRequest(http.MethodGet, got.ProfilePic, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())
}

func TestUploadAvatarErrors(t *testing.T) {
	s := newServer(t, nil, 8)
	_, err := s.env.Orch.Register(context.Background(), app.Registration{Username: "alice", ConnectionID: "c1"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"missing file", uploadRequest(t, "alice", "", nil), http.StatusBadRequest},
		{"missing username", uploadRequest(t, "", "a.png", []byte("x")), http.StatusBadRequest},
		{"too large", uploadRequest(t, "alice", "a.png", []byte("0123456789")), http.StatusRequestEntityTooLarge},
		{"unsupported type", uploadRequest(t, "alice", "a.exe", []byte("x")), http.StatusUnsupportedMediaType},
		{"unknown user", uploadRequest(t, "ghost", "a.png", []byte("x")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, s.do(tt.req).Code)
		})
	}
}

func TestUploadIsRateLimitedPerClient(t *testing.T) {
	s := newServer(t, ratelimit.NewMemory(1, time.Minute), 0)
	_, err := s.env.Orch.Register(context.Background(), app.Registration{Username: "alice", ConnectionID: "c1"})
	require.NoError(t, err)

	first := s.do(uploadRequest(t, "alice", "a.png", []byte("x")))
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)

	again := uploadRequest(t, "alice", "b.png", []byte("y"))
	for _, c := range cookies {
		again.AddCookie(c)
	}
	assert.Equal(t, http.StatusTooManyRequests, s.do(again).Code)

	stranger := s.do(uploadRequest(t, "alice", "c.png", []byte("z")))
	assert.Equal(t, http.StatusOK, stranger.Code, "a new client gets its own window")
}

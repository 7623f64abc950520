package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cn-chinese-link/internal/app/server/auth"
	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/db/sqlite"
	"cn-chinese-link/internal/domain/account"
	"cn-chinese-link/internal/domain/asr"
	"cn-chinese-link/internal/domain/audio"
	"cn-chinese-link/internal/domain/chat"
	"cn-chinese-link/internal/domain/dashscope"
	"cn-chinese-link/internal/domain/session/memory"
	"cn-chinese-link/internal/domain/stats"
	"cn-chinese-link/internal/domain/tracking"
	"cn-chinese-link/internal/domain/vocab"
)

const testReply = `{"chinese":"欢迎光临！想吃点什么？","pinyin":"huān yíng guāng lín","english":"Welcome!","keywords":[{"word":"欢迎","meaning":"welcome"}],"suggestions":["我想要一碗面","有推荐吗"]}`

type stubLLM struct {
	err error
}

func (s *stubLLM) Chat(ctx context.Context, dialogue []*schema.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return testReply, nil
}

func (s *stubLLM) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{"model_name": "stub"}
}

type stubTTS struct{}

func (stubTTS) Synthesize(ctx context.Context, text string, male bool) ([]byte, error) {
	return []byte("ID3" + text), nil
}

type stubASR struct {
	err error
}

func (s *stubASR) Recognize(ctx context.Context, audio []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "我想要一碗面", nil
}

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	llm     *stubLLM
	asr     *stubASR
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "server.db"), LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })

	store := memory.NewMemoryStore(nil)
	tracker := tracking.NewTracker(db)
	vocabs := vocab.NewService(db, tracker)
	llm := &stubLLM{}
	recognizer := &stubASR{}
	deps := Deps{
		Auth:     auth.NewAuthManager(store, time.Hour, "admin-pass"),
		Accounts: account.NewService(db, tracker),
		Chat: chat.NewService(store, llm, db,
			chat.WithTracker(tracker),
			chat.WithVocab(vocabs),
			chat.WithTTS(stubTTS{}),
			chat.WithASR("stub", recognizer),
		),
		Vocab:          vocabs,
		Stats:          stats.NewService(db),
		Tracker:        tracker,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	}
	app := NewApp(Config{}, deps)
	return &testServer{handler: app.Handler(), db: db, llm: llm, asr: recognizer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, "POST", "/api/auth/register", "", gin.H{
		"email": email, "password": "secret1", "confirm_password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var health map[string]string
	decode(t, w, &health)
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, health["time"])

	w = s.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestHealthChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := true
	app := NewApp(Config{}, Deps{
		ModelInfo: map[string]interface{}{"model_name": "deepseek-chat"},
		HealthChecks: map[string]func(context.Context) bool{
			"redis": func(ctx context.Context) bool { return healthy },
		},
	})

	get := func() (int, map[string]interface{}) {
		w := httptest.NewRecorder()
		app.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body
	}

	code, body := get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]interface{}{"redis": true}, body["checks"])
	assert.Equal(t, "deepseek-chat", body["llm"].(map[string]interface{})["model_name"])

	healthy = false
	code, body = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]interface{}{"redis": false}, body["checks"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "POST", "/api/auth/register", "", gin.H{"email": "a@b.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "密码至少6位 Password must be at least 6 characters", errorOf(t, w))

	token := s.register(t, "Learner@Example.com")

	w = s.do(t, "POST", "/api/auth/register", "", gin.H{"email": "learner@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "该邮箱已被注册 Email already registered", errorOf(t, w))

	w = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "learner@example.com", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "邮箱或密码错误 Invalid email or password", errorOf(t, w))

	w = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "LEARNER@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, "GET", "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.User
	decode(t, w, &me)
	assert.Equal(t, "learner@example.com", me.Email)
	assert.Equal(t, "Learner", me.Nickname)

	w = s.do(t, "PUT", "/api/me", token, gin.H{"nickname": "小明", "hsk_level": 5})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &me)
	assert.Equal(t, "小明", me.Nickname)
	assert.Equal(t, 5, me.HSKLevel)

	w = s.do(t, "POST", "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, "GET", "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCatalogAndStartLearning(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "GET", "/api/roles", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roles struct {
		Roles []struct {
			Name   string   `json:"name"`
			Scenes []string `json:"scenes"`
		} `json:"roles"`
	}
	decode(t, w, &roles)
	assert.Len(t, roles.Roles, 6)

	w = s.do(t, "GET", "/api/hsk-levels", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"default":3`)

	w = s.do(t, "POST", "/api/learning/start", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var ev models.Event
	require.NoError(t, s.db.Where("event_name = ?", "start_learning").First(&ev).Error)
	assert.Nil(t, ev.UserID)
	assert.Equal(t, "{}", ev.EventData)
}

type convResponse struct {
	ID          string         `json:"id"`
	Epoch       int            `json:"epoch"`
	Messages    []chat.Message `json:"messages"`
	Suggestions []string       `json:"suggestions"`
	Error       string         `json:"error"`
}

func TestConversationFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "chat@example.com")

	w := s.do(t, "POST", "/api/conversations", token, gin.H{"role": "服务员", "scene": "不存在"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "POST", "/api/conversations", token, gin.H{"role": "服务员", "scene": "餐厅点餐", "hsk_level": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var conv convResponse
	decode(t, w, &conv)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, []string{"我想要一碗面", "有推荐吗"}, conv.Suggestions)
	base := "/api/conversations/" + conv.ID

	w = s.do(t, "POST", base+"/messages", token, gin.H{"text": "有推荐吗"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &conv)
	assert.Len(t, conv.Messages, 3)

	s.llm.err = assert.AnError
	w = s.do(t, "POST", base+"/messages", token, gin.H{"text": "再来一个"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "⚠️ 发送失败，请重试", errorOf(t, w))
	s.llm.err = nil

	w = s.do(t, "GET", base, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &conv)
	assert.Len(t, conv.Messages, 3)

	w = s.do(t, "GET", base+"/messages/0/speech", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "ID3"))

	w = s.do(t, "GET", base+"/messages/1/speech", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, "POST", base+"/messages/0/keywords/"+url.PathEscape("欢迎"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var saved models.Vocab
	decode(t, w, &saved)
	assert.Equal(t, "welcome", saved.Meaning)

	w = s.do(t, "POST", base+"/restart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &conv)
	assert.Len(t, conv.Messages, 1)
	assert.Equal(t, 1, conv.Epoch)

	other := s.register(t, "other@example.com")
	w = s.do(t, "GET", base, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartWhenOpeningFails(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "retry@example.com")
	s.llm.err = assert.AnError

	w := s.do(t, "POST", "/api/conversations", token, gin.H{"role": "小李", "scene": "周末约饭"})
	require.Equal(t, http.StatusCreated, w.Code)
	var conv convResponse
	decode(t, w, &conv)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, "⚠️ 发送失败，请重试", conv.Error)

	s.llm.err = nil
	w = s.do(t, "POST", "/api/conversations/"+conv.ID+"/opening", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &conv)
	assert.Len(t, conv.Messages, 1)
}

func TestSendVoice(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "voice@example.com")

	w := s.do(t, "POST", "/api/conversations", token, gin.H{"role": "服务员", "scene": "餐厅点餐"})
	require.Equal(t, http.StatusCreated, w.Code)
	var conv convResponse
	decode(t, w, &conv)

	upload := func(size int) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("audio", "voice.wav")
		require.NoError(t, err)
		_, err = part.Write(make([]byte, size))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest("POST", "/api/conversations/"+conv.ID+"/voice", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	w = upload(500)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "录音太短，请重试 Recording too short", errorOf(t, w))

	w = upload(4096)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Text         string       `json:"text"`
		Conversation convResponse `json:"conversation"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "我想要一碗面", resp.Text)
	assert.Len(t, resp.Conversation.Messages, 3)

	s.asr.err = fmt.Errorf("音频处理失败: %w", audio.ErrUnsupportedFormat)
	w = upload(4096)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, chat.ErrAudioFormat.Error(), errorOf(t, w))

	s.asr.err = fmt.Errorf("paraformer: %w", &dashscope.Error{Code: "InternalError", Message: "recognizer down"})
	w = upload(4096)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "❌ 语音识别出错，请重试 Speech recognition failed", errorOf(t, w))
	assert.NotContains(t, w.Body.String(), "recognizer down")

	s.asr.err = asr.ErrNoSpeech
	w = upload(4096)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestVocabRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "vocab@example.com")

	w := s.do(t, "POST", "/api/vocab", token, gin.H{"word": "面条", "meaning": "noodles", "context": "我想吃面条"})
	require.Equal(t, http.StatusOK, w.Code)
	var v models.Vocab
	decode(t, w, &v)

	w = s.do(t, "GET", "/api/vocab", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	other := s.register(t, "thief@example.com")
	path := "/api/vocab/" + strconv.FormatInt(v.ID, 10)
	w = s.do(t, "DELETE", path, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, "POST", path+"/mastered", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, "GET", "/api/vocab", token, nil)
	assert.Contains(t, w.Body.String(), `"count":0`)

	w = s.do(t, "DELETE", path, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, "DELETE", "/api/vocab/abc", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "stats@example.com")
	w := s.do(t, "POST", "/api/conversations", token, gin.H{"role": "张总", "scene": "薪资谈判", "hsk_level": 4})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "stats@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, "GET", "/admin/summary", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, "POST", "/admin/login", "", gin.H{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "密码错误 Wrong password", errorOf(t, w))

	w = s.do(t, "POST", "/admin/login", "", gin.H{"password": "admin-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	var sess struct {
		Token string `json:"token"`
	}
	decode(t, w, &sess)
	admin := sess.Token

	w = s.do(t, "GET", "/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users stats.UserStats
	decode(t, w, &users)
	assert.Equal(t, 1, users.Total)
	assert.Equal(t, 1, users.ActiveThisMonth)

	w = s.do(t, "GET", "/admin/role-scenes", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rs stats.RoleSceneStats
	decode(t, w, &rs)
	assert.Equal(t, 1, rs.Total)
	require.Len(t, rs.Pairs, 1)
	assert.Equal(t, "张总 + 薪资谈判", rs.Pairs[0].Name)

	w = s.do(t, "GET", "/admin/events?limit=2", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events stats.EventStats
	decode(t, w, &events)
	assert.Len(t, events.Recent, 2)

	for _, path := range []string{"/admin/vocab", "/admin/summary"} {
		w = s.do(t, "GET", path, admin, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w = s.do(t, "POST", "/admin/logout", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, "GET", "/admin/summary", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorResponse(t *testing.T) {
	status, msg := errorResponse(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, msgInternal, msg)

	status, msg = errorResponse(&account.ValidationError{Message: "两次密码不一致 Passwords do not match"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "两次密码不一致 Passwords do not match", msg)
}

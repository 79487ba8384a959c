package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamcorder/internal/core/domain"
	handlers "streamcorder/internal/handlers/http"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSupervisor struct{ mock.Mock }

func (m *mockSupervisor) Start(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockSupervisor) Stop(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockSupervisor) StartAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSupervisor) StopAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSupervisor) Status() domain.SupervisorStatus {
	return m.Called().Get(0).(domain.SupervisorStatus)
}

func (m *mockSupervisor) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockAuthManager struct{ mock.Mock }

func (m *mockAuthManager) BeginAuthorization() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockAuthManager) CompleteAuthorization(ctx context.Context, redirectURL string) error {
	return m.Called(ctx, redirectURL).Error(0)
}

func (m *mockAuthManager) EnsureValidToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockAuthManager) State() domain.AuthState {
	return m.Called().Get(0).(domain.AuthState)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) Enqueue(ctx context.Context, videoPath, streamName string) (*domain.UploadJob, error) {
	args := m.Called(ctx, videoPath, streamName)
	job, _ := args.Get(0).(*domain.UploadJob)
	return job, args.Error(1)
}

func (m *mockQueue) List(ctx context.Context) ([]*domain.UploadJob, error) {
	args := m.Called(ctx)
	jobs, _ := args.Get(0).([]*domain.UploadJob)
	return jobs, args.Error(1)
}

func (m *mockQueue) Retry(ctx context.Context, videoPaths []string) (int, error) {
	args := m.Called(ctx, videoPaths)
	return args.Int(0), args.Error(1)
}

func (m *mockQueue) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockDiscovery struct{ mock.Mock }

func (m *mockDiscovery) Scan(ctx context.Context) ([]domain.VideoFile, error) {
	args := m.Called(ctx)
	files, _ := args.Get(0).([]domain.VideoFile)
	return files, args.Error(1)
}

type handlerFixture struct {
	router     *gin.Engine
	supervisor *mockSupervisor
	auth       *mockAuthManager
	queue      *mockQueue
	discovery  *mockDiscovery
}

func newHandler(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		router:     gin.New(),
		supervisor: &mockSupervisor{},
		auth:       &mockAuthManager{},
		queue:      &mockQueue{},
		discovery:  &mockDiscovery{},
	}
	h := handlers.NewCommandHandler(f.supervisor, f.auth, f.queue, f.discovery, zap.NewNop().Sugar())
	h.RegisterRoutes(f.router)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return w, decoded
}

func TestStartRecording_SingleStream(t *testing.T) {
	f := newHandler(t)
	f.supervisor.On("Start", mock.Anything, "cam1").Return(nil)
	// Liveness confirmation is asynchronous; right after a start the
	// session is usually still Starting and must already count.
	f.supervisor.On("Status").Return(domain.SupervisorStatus{
		Streams: []domain.StreamStatus{{Name: "cam1", Enabled: true, State: domain.SessionStarting}},
	})

	w, body := f.do(t, http.MethodPost, "/api/v1/recording/start", `{"stream":"cam1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["recording"])
	f.supervisor.AssertExpectations(t)
}

func TestStartRecording_AllStreamsWhenBodyOmitted(t *testing.T) {
	f := newHandler(t)
	f.supervisor.On("StartAll", mock.Anything).Return(nil)
	f.supervisor.On("Status").Return(domain.SupervisorStatus{
		Streams: []domain.StreamStatus{
			{Name: "cam1", Enabled: true, State: domain.SessionRunning},
			{Name: "cam2", Enabled: true, State: domain.SessionStarting},
		},
		ActiveStreams: 1,
	})

	w, body := f.do(t, http.MethodPost, "/api/v1/recording/start", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	f.supervisor.AssertExpectations(t)
}

func TestStartRecording_FailureKeeps200(t *testing.T) {
	f := newHandler(t)
	f.supervisor.On("Start", mock.Anything, "ghost").Return(domain.ErrStreamNotFound)
	f.supervisor.On("Status").Return(domain.SupervisorStatus{})

	w, body := f.do(t, http.MethodPost, "/api/v1/recording/start", `{"stream":"ghost"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "not found")
}

func TestStartRecording_MalformedBody(t *testing.T) {
	f := newHandler(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/recording/start", `{"stream":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestStopRecording_StopsAll(t *testing.T) {
	f := newHandler(t)
	f.supervisor.On("StopAll", mock.Anything).Return(nil)
	f.supervisor.On("Status").Return(domain.SupervisorStatus{ActiveStreams: 0})

	w, body := f.do(t, http.MethodPost, "/api/v1/recording/stop", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["recording"])
	f.supervisor.AssertExpectations(t)
}

func TestRecordingStatus(t *testing.T) {
	f := newHandler(t)
	f.supervisor.On("Status").Return(domain.SupervisorStatus{
		Streams: []domain.StreamStatus{
			{Name: "cam1", Enabled: true, State: domain.SessionRunning},
			{Name: "cam2", Enabled: true, State: domain.SessionRunning},
			{Name: "cam3", Enabled: true, State: domain.SessionRunning},
		},
		ActiveStreams: 3,
	})

	w, body := f.do(t, http.MethodGet, "/api/v1/recording/status", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["recording"])
	assert.Equal(t, float64(3), body["active_streams"])
}

func TestAuthorize_ReturnsAuthURL(t *testing.T) {
	f := newHandler(t)
	f.auth.On("BeginAuthorization").Return("https://accounts.example.com/auth?state=abc", nil)

	w, body := f.do(t, http.MethodPost, "/api/v1/youtube/authorize", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["auth_url"], "state=abc")
}

func TestAuthorize_MissingClientConfig(t *testing.T) {
	f := newHandler(t)
	f.auth.On("BeginAuthorization").Return("", domain.ErrUnauthorized)

	w, body := f.do(t, http.MethodPost, "/api/v1/youtube/authorize", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestCompleteAuthorization(t *testing.T) {
	f := newHandler(t)
	redirect := "http://127.0.0.1:8089/oauth2callback?code=c&state=s"
	f.auth.On("CompleteAuthorization", mock.Anything, redirect).Return(nil)

	w, body := f.do(t, http.MethodPost, "/api/v1/youtube/complete",
		`{"redirect_url":"http://127.0.0.1:8089/oauth2callback?code=c&state=s"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	f.auth.AssertExpectations(t)
}

func TestCompleteAuthorization_StateMismatch(t *testing.T) {
	f := newHandler(t)
	f.auth.On("CompleteAuthorization", mock.Anything, mock.Anything).Return(domain.ErrStateMismatch)

	w, body := f.do(t, http.MethodPost, "/api/v1/youtube/complete", `{"redirect_url":"http://x/?code=c&state=bad"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "state token")
}

func TestListVideos(t *testing.T) {
	f := newHandler(t)
	modified := time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC)
	f.discovery.On("Scan", mock.Anything).Return([]domain.VideoFile{{
		Path:       "/videos/cam1_20250901_103000.mp4",
		Name:       "cam1_20250901_103000.mp4",
		StreamName: "cam1",
		SizeBytes:  3 * 1024 * 1024,
		ModifiedAt: modified,
	}}, nil)

	w, body := f.do(t, http.MethodGet, "/api/v1/videos", "")

	assert.Equal(t, http.StatusOK, w.Code)
	videos := body["videos"].([]interface{})
	require.Len(t, videos, 1)
	entry := videos[0].(map[string]interface{})
	assert.Equal(t, "cam1", entry["stream_name"])
	assert.Equal(t, float64(3), entry["size_mb"])
	assert.Equal(t, "2025-09-01 10:30:00", entry["modified_date"])
}

func TestRetryUploads(t *testing.T) {
	f := newHandler(t)
	f.queue.On("Retry", mock.Anything, []string{"/videos/a.mp4", "/videos/b.mp4"}).Return(2, nil)

	w, body := f.do(t, http.MethodPost, "/api/v1/videos/retry",
		`{"video_paths":["/videos/a.mp4","/videos/b.mp4"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["message"], "2 upload(s)")
	f.queue.AssertExpectations(t)
}

func TestRetryUploads_MalformedBody(t *testing.T) {
	f := newHandler(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/videos/retry", `{"video_paths":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
}

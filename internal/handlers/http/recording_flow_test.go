package http_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/services"
	handlers "streamcorder/internal/handlers/http"
	"streamcorder/internal/infrastructure/monitoring"
	"streamcorder/internal/infrastructure/recording"
	"streamcorder/pkg/retry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stuckProc never produces output and only exits when terminated, so
// its session stays in Starting for the whole grace period.
type stuckProc struct {
	exited chan struct{}
	once   sync.Once
}

func (p *stuckProc) exit() { p.once.Do(func() { close(p.exited) }) }

func (p *stuckProc) Wait() error {
	<-p.exited
	return nil
}

func (p *stuckProc) Terminate() error {
	p.exit()
	return nil
}

func (p *stuckProc) Kill() error {
	p.exit()
	return nil
}

func (p *stuckProc) Pid() int { return 4242 }

type stuckRunner struct{}

func (stuckRunner) Start(argv []string, logPath string) (recording.ProcessHandle, error) {
	return &stuckProc{exited: make(chan struct{})}, nil
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(domain.Event) {}

// The start response must report recording=true even though liveness
// confirmation has not promoted the session to Running yet.
func TestStartRecording_AgainstRealSupervisor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry, err := services.NewStreamRegistry([]domain.StreamConfig{{
		Name:            "cam1",
		RTSPURL:         "rtsp://localhost:8554/cam1",
		EncoderTemplate: "ffmpeg -y -i INPUT_URL -c:v copy",
		OutputDir:       t.TempDir(),
		Enabled:         true,
	}})
	require.NoError(t, err)

	sup := recording.NewSupervisor(registry, noopBroadcaster{}, nil, stuckRunner{},
		monitoring.NewCollector(prometheus.NewRegistry()), recording.Config{
			StartGracePeriod: 30 * time.Second,
			StopGracePeriod:  time.Second,
			MaxRestarts:      0,
			Backoff: retry.Config{
				MaxAttempts:  1,
				InitialDelay: 10 * time.Millisecond,
				MaxDelay:     50 * time.Millisecond,
				Multiplier:   2,
			},
		}, zap.NewNop().Sugar())
	t.Cleanup(func() { sup.Shutdown(context.Background()) })

	f := &handlerFixture{
		router:     gin.New(),
		supervisor: nil,
		auth:       &mockAuthManager{},
		queue:      &mockQueue{},
		discovery:  &mockDiscovery{},
	}
	h := handlers.NewCommandHandler(sup, f.auth, f.queue, f.discovery, zap.NewNop().Sugar())
	h.RegisterRoutes(f.router)

	w, body := f.do(t, http.MethodPost, "/api/v1/recording/start", `{"stream":"cam1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["recording"])

	// The status surface keeps active_streams = confirmed Running only.
	w, body = f.do(t, http.MethodGet, "/api/v1/recording/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["recording"])
	assert.Equal(t, float64(0), body["active_streams"])

	w, body = f.do(t, http.MethodPost, "/api/v1/recording/stop", `{"stream":"cam1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["recording"])
}

package http

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"streamcorder/internal/core/ports"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CommandHandler exposes the recording and upload operations over JSON.
// Command failures are reported in the body with success=false; HTTP
// error codes are reserved for malformed requests.
type CommandHandler struct {
	supervisor ports.Supervisor
	auth       ports.AuthManager
	queue      ports.UploadQueue
	discovery  ports.Discovery
	logger     *zap.SugaredLogger
}

func NewCommandHandler(
	supervisor ports.Supervisor,
	auth ports.AuthManager,
	queue ports.UploadQueue,
	discovery ports.Discovery,
	logger *zap.SugaredLogger,
) *CommandHandler {
	return &CommandHandler{
		supervisor: supervisor,
		auth:       auth,
		queue:      queue,
		discovery:  discovery,
		logger:     logger,
	}
}

// RegisterRoutes mounts the command surface under /api/v1.
func (h *CommandHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/recording/start", h.StartRecording)
		api.POST("/recording/stop", h.StopRecording)
		api.GET("/recording/status", h.RecordingStatus)

		api.POST("/youtube/authorize", h.Authorize)
		api.POST("/youtube/complete", h.CompleteAuthorization)

		api.GET("/videos", h.ListVideos)
		api.POST("/videos/retry", h.RetryUploads)
	}
}

type streamRequest struct {
	Stream string `json:"stream"`
}

type recordingResponse struct {
	Success   bool   `json:"success"`
	Recording bool   `json:"recording"`
	Error     string `json:"error,omitempty"`
}

// StartRecording starts one stream when the body names it, otherwise
// every enabled stream.
func (h *CommandHandler) StartRecording(c *gin.Context) {
	req, ok := h.bindStreamRequest(c)
	if !ok {
		return
	}

	var err error
	if req.Stream != "" {
		err = h.supervisor.Start(c.Request.Context(), req.Stream)
	} else {
		err = h.supervisor.StartAll(c.Request.Context())
	}

	h.recordingResult(c, "start recording", err)
}

// StopRecording mirrors StartRecording.
func (h *CommandHandler) StopRecording(c *gin.Context) {
	req, ok := h.bindStreamRequest(c)
	if !ok {
		return
	}

	var err error
	if req.Stream != "" {
		err = h.supervisor.Stop(c.Request.Context(), req.Stream)
	} else {
		err = h.supervisor.StopAll(c.Request.Context())
	}

	h.recordingResult(c, "stop recording", err)
}

func (h *CommandHandler) bindStreamRequest(c *gin.Context) (streamRequest, bool) {
	var req streamRequest
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, recordingResponse{Success: false, Error: "invalid request body"})
		return req, false
	}
	return req, true
}

func (h *CommandHandler) recordingResult(c *gin.Context, op string, err error) {
	// Starting sessions count as recording: a successful start must not
	// read as "not recording" just because liveness confirmation is
	// still pending.
	recording := h.supervisor.Status().Recording()
	if err != nil {
		h.logger.Warnw(op+" failed", "error", err)
		c.JSON(http.StatusOK, recordingResponse{Success: false, Recording: recording, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, recordingResponse{Success: true, Recording: recording})
}

// RecordingStatus reports whether anything records right now.
func (h *CommandHandler) RecordingStatus(c *gin.Context) {
	status := h.supervisor.Status()
	c.JSON(http.StatusOK, gin.H{
		"recording":      status.Recording(),
		"active_streams": status.ActiveStreams,
	})
}

// Authorize starts the OAuth flow and hands back the URL the user must
// open in a browser.
func (h *CommandHandler) Authorize(c *gin.Context) {
	authURL, err := h.auth.BeginAuthorization()
	if err != nil {
		h.logger.Warnw("authorization start failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "auth_url": authURL})
}

type completeRequest struct {
	RedirectURL string `json:"redirect_url"`
}

// CompleteAuthorization consumes the pasted redirect URL.
func (h *CommandHandler) CompleteAuthorization(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	if err := h.auth.CompleteAuthorization(c.Request.Context(), req.RedirectURL); err != nil {
		h.logger.Warnw("authorization completion failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type videoEntry struct {
	Path         string  `json:"path"`
	Name         string  `json:"name"`
	StreamName   string  `json:"stream_name"`
	SizeMB       float64 `json:"size_mb"`
	ModifiedDate string  `json:"modified_date"`
}

// ListVideos scans the configured output directories.
func (h *CommandHandler) ListVideos(c *gin.Context) {
	videos, err := h.discovery.Scan(c.Request.Context())
	if err != nil {
		h.logger.Errorw("video scan failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"videos": []videoEntry{}, "error": err.Error()})
		return
	}

	entries := make([]videoEntry, 0, len(videos))
	for _, v := range videos {
		entries = append(entries, videoEntry{
			Path:         v.Path,
			Name:         v.Name,
			StreamName:   v.StreamName,
			SizeMB:       math.Round(float64(v.SizeBytes)/(1024*1024)*100) / 100,
			ModifiedDate: v.ModifiedAt.Format("2006-01-02 15:04:05"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"videos": entries})
}

type retryRequest struct {
	VideoPaths []string `json:"video_paths"`
}

// RetryUploads re-submits failed upload jobs.
func (h *CommandHandler) RetryUploads(c *gin.Context) {
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	requeued, err := h.queue.Retry(c.Request.Context(), req.VideoPaths)
	if err != nil {
		h.logger.Warnw("upload retry failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("%d upload(s) re-queued", requeued),
	})
}

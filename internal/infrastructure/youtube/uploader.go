package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// UploaderConfig carries the publishing defaults for uploaded videos.
type UploaderConfig struct {
	Privacy        string
	CategoryID     string
	RequestsPerMin float64
}

// Uploader performs single upload attempts against the YouTube Data
// API. Failures are classified as transient or permanent so the queue
// knows whether to retry.
type Uploader struct {
	auth    ports.AuthManager
	limiter *rate.Limiter
	cfg     UploaderConfig
	logger  *zap.SugaredLogger
}

func NewUploader(auth ports.AuthManager, cfg UploaderConfig, logger *zap.SugaredLogger) *Uploader {
	return &Uploader{
		auth:    auth,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMin/60.0), 1),
		cfg:     cfg,
		logger:  logger,
	}
}

// Upload sends one video file. A missing or unreadable file is a
// permanent failure; API and transport errors are classified by status.
func (u *Uploader) Upload(ctx context.Context, job *domain.UploadJob) error {
	if err := u.limiter.Wait(ctx); err != nil {
		return err
	}

	accessToken, err := u.auth.EnsureValidToken(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(job.VideoPath)
	if err != nil {
		return fmt.Errorf("%w: open video: %v", domain.ErrUploadPermanent, err)
	}
	defer file.Close()

	svc, err := yt.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})))
	if err != nil {
		return fmt.Errorf("%w: create service: %v", domain.ErrUploadTransient, err)
	}

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       videoTitle(job),
			Description: fmt.Sprintf("Recording from stream %s", job.StreamName),
			CategoryId:  u.cfg.CategoryID,
		},
		Status: &yt.VideoStatus{PrivacyStatus: u.cfg.Privacy},
	}

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return classifyAPIError(err)
	}

	u.logger.Infow("video uploaded",
		"path", job.VideoPath, "stream", job.StreamName, "video_id", resp.Id)
	return nil
}

func videoTitle(job *domain.UploadJob) string {
	base := filepath.Base(job.VideoPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// classifyAPIError maps an API failure onto the retry taxonomy: rate
// limiting and server-side errors are transient, other client errors
// are permanent, and anything without an HTTP status (network, context)
// is worth retrying.
func classifyAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests ||
			apiErr.Code == http.StatusRequestTimeout ||
			apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", domain.ErrUploadTransient, err)
		case apiErr.Code == http.StatusForbidden && isQuotaError(apiErr):
			// Quota exhaustion also comes back as 403 but is not an auth
			// problem; re-authorizing would not help.
			return fmt.Errorf("%w: %v", domain.ErrUploadPermanent, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		default:
			return fmt.Errorf("%w: %v", domain.ErrUploadPermanent, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUploadTransient, err)
}

func isQuotaError(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "uploadLimitExceeded":
			return true
		}
	}
	return false
}

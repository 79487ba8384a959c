package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"

	"go.uber.org/zap"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".mov":  true,
	".flv":  true,
	".ts":   true,
}

type videoDiscovery struct {
	registry ports.Registry
	logger   *zap.SugaredLogger
}

// NewVideoDiscovery returns a Discovery that walks each enabled stream's
// output directory. Read-only; it never mutates files.
func NewVideoDiscovery(registry ports.Registry, logger *zap.SugaredLogger) ports.Discovery {
	return &videoDiscovery{registry: registry, logger: logger}
}

func (d *videoDiscovery) Scan(ctx context.Context) ([]domain.VideoFile, error) {
	var videos []domain.VideoFile

	for _, stream := range d.registry.Enabled() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entries, err := os.ReadDir(stream.OutputDir)
		if err != nil {
			// A missing directory just means nothing recorded yet.
			if os.IsNotExist(err) {
				continue
			}
			d.logger.Warnw("failed to read output directory",
				"stream", stream.Name, "dir", stream.OutputDir, "error", err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if !videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			videos = append(videos, domain.VideoFile{
				Path:       filepath.Join(stream.OutputDir, entry.Name()),
				Name:       entry.Name(),
				StreamName: stream.Name,
				SizeBytes:  info.Size(),
				ModifiedAt: info.ModTime(),
			})
		}
	}

	// Most recent first for presentation.
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].ModifiedAt.After(videos[j].ModifiedAt)
	})

	return videos, nil
}

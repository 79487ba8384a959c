package recording_test

import (
	"testing"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/infrastructure/recording"

	"github.com/stretchr/testify/assert"
)

func TestBuildCommand_SubstitutesInputURL(t *testing.T) {
	stream := domain.StreamConfig{
		Name:            "cam1",
		RTSPURL:         "rtsp://localhost:8554/cam1",
		EncoderTemplate: "ffmpeg -y -i INPUT_URL -c:v copy",
	}

	argv := recording.BuildCommand(stream, "/videos/cam1.mp4")

	assert.Equal(t, []string{
		"ffmpeg", "-y", "-i", "rtsp://localhost:8554/cam1", "-c:v", "copy", "/videos/cam1.mp4",
	}, argv)
}

func TestBuildCommand_HonorsOutputFileToken(t *testing.T) {
	stream := domain.StreamConfig{
		Name:            "cam1",
		WebRTCURL:       "http://localhost:8889/cam1",
		EncoderTemplate: "ffmpeg -i INPUT_URL -f mp4 OUTPUT_FILE -nostdin",
	}

	argv := recording.BuildCommand(stream, "/videos/out.mp4")

	assert.Equal(t, []string{
		"ffmpeg", "-i", "http://localhost:8889/cam1", "-f", "mp4", "/videos/out.mp4", "-nostdin",
	}, argv)
}

func TestBuildCommand_PrefersWebRTCInput(t *testing.T) {
	stream := domain.StreamConfig{
		Name:            "cam1",
		WebRTCURL:       "http://localhost:8889/cam1",
		EncoderTemplate: "ffmpeg -i INPUT_URL",
	}

	argv := recording.BuildCommand(stream, "/videos/out.mp4")
	assert.Contains(t, argv, "http://localhost:8889/cam1")
}

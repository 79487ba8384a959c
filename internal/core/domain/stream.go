package domain

// InputPlaceholder is the token in an encoder command template that is
// substituted with the stream's source URL at spawn time.
const InputPlaceholder = "INPUT_URL"

// StreamConfig is one configured video source paired with an encoder
// command template. Created by configuration load; never mutated by the
// core at runtime.
type StreamConfig struct {
	Name            string
	WebRTCURL       string
	RTSPURL         string
	EncoderTemplate string
	OutputDir       string
	Width           int
	Height          int
	Enabled         bool
	UploadToYouTube bool
}

// InputURL returns whichever source URL is populated.
func (c StreamConfig) InputURL() string {
	if c.WebRTCURL != "" {
		return c.WebRTCURL
	}
	return c.RTSPURL
}

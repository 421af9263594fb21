// Package domain contains core domain types for the video bot.
package domain

// Channel identifies the client surface a request arrived on.
type Channel string

const (
	ChannelWeb  Channel = "web"
	ChannelChat Channel = "chat"
)

// GenerationRequest is an inbound ask for a video.
type GenerationRequest struct {
	UserID    string
	RawPrompt string
	StyleName string
	Channel   Channel
}

// ResolvedPrompt is a prompt with its style applied.
type ResolvedPrompt struct {
	Prompt             string // as typed, used for cache keys and captions
	AugmentedPrompt    string // sent to the inference service
	StyleName          string
	NeedsClarification bool
}

// Artifact is a generated video payload.
type Artifact struct {
	Data        []byte
	ContentType string
	Cached      bool
	Compressed  bool
}

// Size returns the payload length in bytes.
func (a Artifact) Size() int64 {
	return int64(len(a.Data))
}

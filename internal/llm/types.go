package llm

import (
	"context"
	"encoding/base64"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an inline image attached to a message.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURL encodes the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
	Images  []Image
}

// SystemMessage returns a system instruction message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user message, optionally with images.
func UserMessage(content string, images ...Image) Message {
	return Message{Role: RoleUser, Content: content, Images: images}
}

// CompletionRequest is a fully resolved request handed to a provider.
type CompletionRequest struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	JSONMode    bool
}

// CompletionResponse is a provider's reply.
type CompletionResponse struct {
	Content      string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
}

// Provider adapts one model vendor.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

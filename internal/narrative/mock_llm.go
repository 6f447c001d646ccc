package narrative

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLLM is a deterministic StoryProvider for testing.
// It returns predictable responses based on prompt content.
type MockLLM struct {
	mu sync.Mutex

	// Provider is reported in every Usage. Defaults to ProviderGemini.
	Provider Provider

	// Story is returned by GenerateStory. If zero, a state is derived from the prompt.
	Story *State

	// Image is returned by GenerateImage.
	Image string

	// Chat is returned by GetChatResponse. If empty, ChatFallback is used.
	Chat string

	// Usage is attached to every result (Provider is filled in).
	Usage Usage

	// Error, if set, is returned by every call instead of a result.
	Error error

	// ImageError, if set, is returned by GenerateImage only.
	ImageError error

	// ErrorDescription, if set, is what DescribeError reports for any error.
	ErrorDescription *ErrorDescription

	// Recorded calls.
	LastPrompt      string
	LastImagePrompt string
	LastQuality     ImageQuality
	LastMessage     string
	LastState       State
	Calls           int
}

// NewMockLLM creates a mock returning story for every GenerateStory call.
func NewMockLLM(story State) *MockLLM {
	return &MockLLM{Story: &story}
}

// NewMockLLMWithError creates a mock that always returns err.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

func (m *MockLLM) usage() Usage {
	u := m.Usage
	u.Provider = m.Provider
	if u.Provider == "" {
		u.Provider = ProviderGemini
	}
	return u
}

func (m *MockLLM) GenerateStory(ctx context.Context, prompt string) (Envelope[State], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastPrompt = prompt
	if m.Error != nil {
		return Envelope[State]{}, m.Error
	}

	if m.Story != nil {
		return Envelope[State]{Data: m.Story.WithDefaults(), Usage: m.usage()}, nil
	}
	return Envelope[State]{Data: generateMockState(prompt, m.Calls), Usage: m.usage()}, nil
}

func (m *MockLLM) GenerateImage(ctx context.Context, prompt, style string, quality ImageQuality) (Envelope[string], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastImagePrompt = ImagePrompt(prompt, style, quality)
	m.LastQuality = quality
	if m.Error != nil {
		return Envelope[string]{}, m.Error
	}
	if m.ImageError != nil {
		return Envelope[string]{}, m.ImageError
	}
	return Envelope[string]{Data: m.Image, Usage: m.usage()}, nil
}

func (m *MockLLM) GetChatResponse(ctx context.Context, message string, state State) (Envelope[string], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastMessage = message
	m.LastState = state
	if m.Error != nil {
		return Envelope[string]{}, m.Error
	}

	reply := m.Chat
	if reply == "" {
		reply = ChatFallback
	}
	return Envelope[string]{Data: reply, Usage: m.usage()}, nil
}

// DescribeError reports the configured description for any error.
func (m *MockLLM) DescribeError(err error) (ErrorDescription, bool) {
	if m.ErrorDescription == nil {
		return ErrorDescription{}, false
	}
	return *m.ErrorDescription, true
}

// generateMockState creates a predictable state from the prompt. The player's
// action, when present, is echoed into the story text.
func generateMockState(prompt string, turn int) State {
	action := ""
	if idx := strings.Index(prompt, "# Player Action"); idx >= 0 {
		rest := strings.TrimSpace(prompt[idx+len("# Player Action"):])
		action = strings.TrimSpace(strings.SplitN(rest, "\n", 2)[0])
	}

	text := fmt.Sprintf("Turn %d: the adventure unfolds.", turn)
	if action != "" {
		text = fmt.Sprintf("Turn %d: you chose to %s.", turn, action)
	}

	return State{
		StoryText:    text,
		Choices:      []string{"Go north", "Go south", "Wait"},
		Inventory:    []string{"torch"},
		CurrentQuest: "Find the way out",
		VisualPrompt: "A dim corridor",
	}.WithDefaults()
}

package narrative

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Defaults substituted for fields a provider omits.
const (
	DefaultStoryText    = "The story begins..."
	DefaultChoice       = "Continue"
	DefaultQuest        = "Unknown quest"
	DefaultVisualPrompt = "A mysterious scene"
	DefaultWorldStyle   = "fantasy"
	DefaultGenre        = "Fantasy"
)

// ChatFallback is returned when a chat reply is empty or cannot be extracted.
const ChatFallback = "Sorry, I couldn't think of a reply just now."

// State is one turn of the story. A State is never modified after it is
// produced; the next turn supersedes it with a new value.
type State struct {
	StoryText    string   `json:"storyText"`
	Choices      []string `json:"choices"`
	Inventory    []string `json:"inventory"`
	CurrentQuest string   `json:"currentQuest"`
	VisualPrompt string   `json:"visualPrompt"`
	WorldStyle   string   `json:"worldStyle"`
	Genre        string   `json:"genre"`
}

// Usage is the token accounting attached to every adapter result.
type Usage struct {
	InputTokens  int      `json:"inputTokens"`
	OutputTokens int      `json:"outputTokens"`
	IsPremium    bool     `json:"isPremium,omitempty"`
	Provider     Provider `json:"provider"`
}

// Envelope pairs an adapter result with its usage.
type Envelope[T any] struct {
	Data  T
	Usage Usage
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.Choices = slices.Clone(s.Choices)
	s.Inventory = slices.Clone(s.Inventory)
	return s
}

// WithDefaults returns a copy of s with every missing field filled in.
func (s State) WithDefaults() State {
	out := s.Clone()
	if strings.TrimSpace(out.StoryText) == "" {
		out.StoryText = DefaultStoryText
	}
	out.Choices = nonEmpty(out.Choices)
	if len(out.Choices) == 0 {
		out.Choices = []string{DefaultChoice}
	}
	if out.Inventory == nil {
		out.Inventory = []string{}
	}
	if strings.TrimSpace(out.CurrentQuest) == "" {
		out.CurrentQuest = DefaultQuest
	}
	if strings.TrimSpace(out.VisualPrompt) == "" {
		out.VisualPrompt = DefaultVisualPrompt
	}
	if strings.TrimSpace(out.WorldStyle) == "" {
		out.WorldStyle = DefaultWorldStyle
	}
	if strings.TrimSpace(out.Genre) == "" {
		out.Genre = DefaultGenre
	}
	return out
}

// JSON renders s for embedding in a continuation prompt.
func (s State) JSON() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// decodeState turns the JSON object a model produced into a State. Each field
// is decoded on its own so a field of the wrong type falls back to its default
// instead of failing the turn. Only a payload that is not a JSON object at all
// yields ErrParse.
func decodeState(raw string) (State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var s State
	decodeField(fields, "storyText", &s.StoryText)
	decodeField(fields, "choices", &s.Choices)
	decodeField(fields, "inventory", &s.Inventory)
	decodeField(fields, "currentQuest", &s.CurrentQuest)
	decodeField(fields, "visualPrompt", &s.VisualPrompt)
	decodeField(fields, "worldStyle", &s.WorldStyle)
	decodeField(fields, "genre", &s.Genre)

	return s.WithDefaults(), nil
}

func decodeField[T any](fields map[string]json.RawMessage, name string, dst *T) {
	raw, ok := fields[name]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = v
}

func nonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			out = append(out, it)
		}
	}
	return out
}

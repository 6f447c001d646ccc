// Package session persists save slots: the full state of each played story,
// its history, the sidekick transcript and the usage aggregate.
package session

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Yates-Labs/saga/internal/narrative"
	"github.com/Yates-Labs/saga/internal/usage"
)

// HistoryEntry is one completed turn. History is ordered most recent first.
type HistoryEntry struct {
	Text     string           `json:"text"`
	Choice   string           `json:"choice"`
	ImageURL string           `json:"imageUrl,omitempty"`
	State    *narrative.State `json:"state,omitempty"`
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleUser     ChatRole = "user"
	RoleSidekick ChatRole = "sidekick"
)

// ChatMessage is one line of the sidekick transcript.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Slot is one saved story.
type Slot struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Genre        string             `json:"genre"`
	Provider     narrative.Provider `json:"provider,omitempty"`
	LastUpdated  time.Time          `json:"lastUpdated"`
	GameState    narrative.State    `json:"gameState"`
	History      []HistoryEntry     `json:"history"`
	ChatMessages []ChatMessage      `json:"chatMessages"`
	UsageStats   usage.Stats        `json:"usageStats"`
}

// NewSlot creates an empty slot with a fresh id.
func NewSlot(name, genre string, provider narrative.Provider) Slot {
	return Slot{
		ID:           uuid.NewString(),
		Name:         name,
		Genre:        genre,
		Provider:     provider,
		LastUpdated:  time.Now(),
		History:      []HistoryEntry{},
		ChatMessages: []ChatMessage{},
	}
}

// Clone returns a deep copy of s.
func (s Slot) Clone() Slot {
	s.GameState = s.GameState.Clone()
	s.ChatMessages = slices.Clone(s.ChatMessages)

	history := make([]HistoryEntry, len(s.History))
	for i, h := range s.History {
		if h.State != nil {
			st := h.State.Clone()
			h.State = &st
		}
		history[i] = h
	}
	s.History = history
	return s
}

// LatestImage returns the image of the most recent turn, if any.
func (s Slot) LatestImage() string {
	if len(s.History) == 0 {
		return ""
	}
	return s.History[0].ImageURL
}

// pruneImages keeps only the most recent history image.
func (s *Slot) pruneImages() {
	for i := 1; i < len(s.History); i++ {
		s.History[i].ImageURL = ""
	}
}

// stripImages drops every history image.
func (s *Slot) stripImages() {
	for i := range s.History {
		s.History[i].ImageURL = ""
	}
}

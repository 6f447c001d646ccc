// Package game runs the turn loop: it builds prompts from the current state,
// sends them through the dispatcher, folds usage into the save slot and
// persists every turn.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Yates-Labs/saga/internal/narrative"
	"github.com/Yates-Labs/saga/internal/orchestrator"
	"github.com/Yates-Labs/saga/internal/session"
	"github.com/Yates-Labs/saga/internal/usage"
)

var (
	ErrNoActiveGame   = errors.New("no game in progress")
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrEmptyMessage   = errors.New("message is empty")
)

// Dispatcher is the subset of orchestrator.Dispatcher the engine uses.
type Dispatcher interface {
	GenerateStoryBeat(ctx context.Context, prompt string, provider narrative.Provider) (narrative.Envelope[narrative.State], error)
	GenerateImage(ctx context.Context, prompt, style string, provider narrative.Provider, quality narrative.ImageQuality) (narrative.Envelope[string], error)
	GetChatResponse(ctx context.Context, message string, state narrative.State, provider narrative.Provider) (narrative.Envelope[string], error)
}

// Options configures an Engine.
type Options struct {
	// Provider serves new games. Loaded slots keep the provider they were
	// played with.
	Provider narrative.Provider
	Tier     usage.Tier
	Images   bool
	Quality  narrative.ImageQuality
	Logger   *zap.Logger
}

// Engine owns the active slot. Only one story or chat request runs at a time;
// overlapping calls fail with ErrTurnInProgress.
type Engine struct {
	dispatcher Dispatcher
	saves      *session.Store
	opts       Options
	logger     *zap.Logger

	busy sync.Mutex

	mu      sync.RWMutex
	current *session.Slot
}

// New creates an Engine.
func New(d Dispatcher, saves *session.Store, opts Options) *Engine {
	if opts.Provider == "" {
		opts.Provider = narrative.ProviderGemini
	}
	if opts.Tier == "" {
		opts.Tier = usage.TierBase
	}
	if opts.Quality == "" {
		opts.Quality = narrative.QualityStandard
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		dispatcher: d,
		saves:      saves,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// NewGame starts a story in genre and makes it the active slot. name defaults
// to the genre name.
func (e *Engine) NewGame(ctx context.Context, genre narrative.Genre, name string) (session.Slot, error) {
	if !e.busy.TryLock() {
		return session.Slot{}, ErrTurnInProgress
	}
	defer e.busy.Unlock()

	prompt, err := narrative.OpeningPrompt(genre)
	if err != nil {
		return session.Slot{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = genre.Name
	}

	slot := session.NewSlot(name, genre.Name, e.opts.Provider)
	e.logger.Info("starting new game", zap.String("slot", slot.ID), zap.String("genre", genre.Name), zap.String("provider", string(slot.Provider)))

	return e.advance(ctx, slot, prompt, "")
}

// Choose plays choice, which may be one of the offered choices or any free
// text action, against the active slot.
func (e *Engine) Choose(ctx context.Context, choice string) (session.Slot, error) {
	if !e.busy.TryLock() {
		return session.Slot{}, ErrTurnInProgress
	}
	defer e.busy.Unlock()

	slot, ok := e.Current()
	if !ok {
		return session.Slot{}, ErrNoActiveGame
	}

	prompt, err := narrative.ContinuationPrompt(slot.GameState, choice)
	if err != nil {
		return session.Slot{}, err
	}
	return e.advance(ctx, slot, prompt, choice)
}

// advance requests the next beat for slot, then its illustration, and saves
// the result. An image failure only fails the turn when the credential was
// rejected; the story is saved and returned either way.
func (e *Engine) advance(ctx context.Context, slot session.Slot, prompt, choice string) (session.Slot, error) {
	env, err := e.dispatcher.GenerateStoryBeat(ctx, prompt, slot.Provider)
	if err != nil {
		return session.Slot{}, err
	}

	state := env.Data
	slot.GameState = state
	slot.History = append([]session.HistoryEntry{{
		Text:   state.StoryText,
		Choice: choice,
		State:  &state,
	}}, slot.History...)
	slot.UsageStats.Record(env.Usage, 0, e.opts.Tier)

	imgErr := e.illustrate(ctx, &slot)

	saved, err := e.save(slot)
	if err != nil {
		return session.Slot{}, err
	}
	return saved, imgErr
}

func (e *Engine) illustrate(ctx context.Context, slot *session.Slot) error {
	if !e.opts.Images {
		return nil
	}

	state := slot.GameState
	env, err := e.dispatcher.GenerateImage(ctx, state.VisualPrompt, state.WorldStyle, slot.Provider, e.opts.Quality)
	if err != nil {
		if orchestrator.IsAuthError(err) {
			return err
		}
		e.logger.Warn("image generation failed, continuing without image", zap.String("slot", slot.ID), zap.Error(err))
		return nil
	}
	if env.Data == "" {
		slot.UsageStats.Record(env.Usage, 0, e.opts.Tier)
		return nil
	}

	slot.History[0].ImageURL = env.Data
	slot.UsageStats.Record(env.Usage, 1, e.opts.Tier)
	return nil
}

// Chat sends message to the sidekick and records both sides of the exchange.
func (e *Engine) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if !e.busy.TryLock() {
		return "", ErrTurnInProgress
	}
	defer e.busy.Unlock()

	slot, ok := e.Current()
	if !ok {
		return "", ErrNoActiveGame
	}

	sent := time.Now()
	env, err := e.dispatcher.GetChatResponse(ctx, message, slot.GameState, slot.Provider)
	if err != nil {
		return "", err
	}

	slot.ChatMessages = append(slot.ChatMessages,
		session.ChatMessage{Role: session.RoleUser, Text: message, Timestamp: sent},
		session.ChatMessage{Role: session.RoleSidekick, Text: env.Data, Timestamp: time.Now()},
	)
	slot.UsageStats.Record(env.Usage, 0, e.opts.Tier)

	if _, err := e.save(slot); err != nil {
		return env.Data, err
	}
	return env.Data, nil
}

func (e *Engine) save(slot session.Slot) (session.Slot, error) {
	saved, err := e.saves.Upsert(slot)
	if err != nil {
		return session.Slot{}, fmt.Errorf("saving slot %s: %w", slot.ID, err)
	}

	e.mu.Lock()
	e.current = &saved
	e.mu.Unlock()
	return saved.Clone(), nil
}

// Load makes the stored slot id the active slot.
func (e *Engine) Load(id string) (session.Slot, error) {
	if !e.busy.TryLock() {
		return session.Slot{}, ErrTurnInProgress
	}
	defer e.busy.Unlock()

	slot, err := e.saves.Get(id)
	if err != nil {
		return session.Slot{}, err
	}
	if slot.Provider == "" {
		slot.Provider = e.opts.Provider
	}

	e.mu.Lock()
	e.current = &slot
	e.mu.Unlock()
	return slot.Clone(), nil
}

// Delete removes a stored slot. Deleting the active slot ends the game.
func (e *Engine) Delete(id string) error {
	if err := e.saves.Delete(id); err != nil {
		return err
	}

	e.mu.Lock()
	if e.current != nil && e.current.ID == id {
		e.current = nil
	}
	e.mu.Unlock()
	return nil
}

// Slots lists saved slots, most recent first.
func (e *Engine) Slots() ([]session.Slot, error) {
	return e.saves.List()
}

// Current returns a copy of the active slot.
func (e *Engine) Current() (session.Slot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return session.Slot{}, false
	}
	return e.current.Clone(), true
}

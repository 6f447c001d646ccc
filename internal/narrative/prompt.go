package narrative

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingGenre  = errors.New("genre required for opening prompt")
	ErrMissingChoice = errors.New("choice required for continuation prompt")
)

// Genre describes a selectable story genre and the visual style its
// illustrations are rendered in.
type Genre struct {
	Name       string
	WorldStyle string
	Premise    string
}

// Genres are the built-in genres offered when starting a game.
var Genres = []Genre{
	{Name: "Fantasy", WorldStyle: "painterly high fantasy", Premise: "a realm of old magic, forgotten kingdoms and restless dragons"},
	{Name: "Sci-Fi", WorldStyle: "sleek retro-futurist sci-fi", Premise: "a frontier starship drifting at the edge of charted space"},
	{Name: "Horror", WorldStyle: "desaturated gothic horror", Premise: "a fog-bound village where something waits beneath the chapel"},
	{Name: "Noir", WorldStyle: "black-and-white 1940s film noir", Premise: "a rain-soaked city of crooked cops, jazz clubs and unpaid debts"},
	{Name: "Cyberpunk", WorldStyle: "neon-drenched cyberpunk", Premise: "a megacity where corporations own the sky and the street owns everything else"},
	{Name: "Post-Apocalyptic", WorldStyle: "dusty post-apocalyptic", Premise: "the ruins of a collapsed civilization, decades after the fall"},
}

// FindGenre looks up a built-in genre by case-insensitive name. Unknown names
// are returned as a custom genre with a generic style.
func FindGenre(name string) Genre {
	for _, g := range Genres {
		if strings.EqualFold(g.Name, name) {
			return g
		}
	}
	return Genre{Name: name, WorldStyle: DefaultWorldStyle, Premise: "a world shaped by the " + name + " genre"}
}

// StorySystemInstruction tells the model to answer with the narrative JSON
// object and nothing else.
const StorySystemInstruction = `You are the narrator of an interactive choose-your-own-adventure game.
Always answer with a single JSON object and no other text, using exactly these fields:
  "storyText":    2-3 vivid paragraphs continuing the story in second person,
  "choices":      3 or 4 short distinct actions the player can take next,
  "inventory":    the items the player currently carries,
  "currentQuest": one sentence describing the player's current goal,
  "visualPrompt": a short visual description of the current scene for an illustrator,
  "worldStyle":   the art style of the world,
  "genre":        the story genre.`

// OpeningPrompt builds the prompt that starts a new story in genre g.
func OpeningPrompt(g Genre) (string, error) {
	if strings.TrimSpace(g.Name) == "" {
		return "", ErrMissingGenre
	}

	var b strings.Builder
	b.WriteString(StorySystemInstruction)
	b.WriteString("\n\n# New Adventure\n\n")
	b.WriteString(fmt.Sprintf("**Genre:** %s\n\n", g.Name))
	b.WriteString(fmt.Sprintf("**Setting:** %s\n\n", g.Premise))
	b.WriteString(fmt.Sprintf("**World Style:** %s\n\n", g.WorldStyle))
	b.WriteString("Open the story with a strong hook, give the player a small starting inventory ")
	b.WriteString("and a first quest. Keep the genre and world style fields exactly as given above.\n")
	return b.String(), nil
}

// ContinuationPrompt builds the prompt for the turn after the player picked
// choice in state prev. The previous state is embedded as JSON so the model
// keeps inventory and quest continuity.
func ContinuationPrompt(prev State, choice string) (string, error) {
	if strings.TrimSpace(choice) == "" {
		return "", ErrMissingChoice
	}

	var b strings.Builder
	b.WriteString(StorySystemInstruction)
	b.WriteString("\n\n# Current State\n\n")
	b.WriteString(prev.JSON())
	b.WriteString("\n\n# Player Action\n\n")
	b.WriteString(choice)
	b.WriteString("\n\n# Task\n\n")
	b.WriteString("Continue the story from the current state, showing the consequences of the player's action. ")
	b.WriteString("Update the inventory when items are gained or lost and advance the quest when it is completed. ")
	b.WriteString("Do not repeat the previous story text.\n")
	return b.String(), nil
}

// ImagePrompt builds the rendering instruction sent to image backends.
// Fast mode asks for a simplified, low-detail variant.
func ImagePrompt(prompt, style string, quality ImageQuality) string {
	if strings.TrimSpace(style) == "" {
		style = DefaultWorldStyle
	}
	if quality == QualityFast {
		return fmt.Sprintf("Simple %s sketch, low detail, flat colors, minimal background: %s", style, prompt)
	}
	return fmt.Sprintf("Cinematic %s illustration, evocative mood, dramatic lighting, rich detail: %s. No text or lettering.", style, prompt)
}

// ChatPersona builds the system directive for the sidekick companion. A nil
// inventory is rendered as an empty list.
func ChatPersona(state State) string {
	inventory := state.Inventory
	if inventory == nil {
		inventory = []string{}
	}
	items := strings.Join(inventory, ", ")

	genre := state.Genre
	if strings.TrimSpace(genre) == "" {
		genre = DefaultGenre
	}
	quest := state.CurrentQuest
	if strings.TrimSpace(quest) == "" {
		quest = DefaultQuest
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("You are the player's loyal sidekick in a %s adventure. ", genre))
	b.WriteString(fmt.Sprintf("The current quest is: %s. ", quest))
	b.WriteString(fmt.Sprintf("The player is carrying: [%s]. ", items))
	b.WriteString("Stay in character, keep replies to two or three sentences, offer hints without solving the quest outright, ")
	b.WriteString("and never mention that you are an AI.")
	if strings.EqualFold(genre, "Noir") {
		b.WriteString(" Talk like a 1940s gumshoe's partner: drop slang like \"see\", \"dame\", \"gat\", \"flatfoot\" and \"on the level\".")
	}
	return b.String()
}

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Yates-Labs/saga/internal/game"
	"github.com/Yates-Labs/saga/internal/narrative"
	"github.com/Yates-Labs/saga/internal/orchestrator"
	"github.com/Yates-Labs/saga/internal/session"
	"github.com/Yates-Labs/saga/internal/usage"
)

var (
	playProvider    string
	playGenre       string
	playName        string
	playSlot        string
	playTier        string
	playImages      bool
	playQuality     string
	playImageDir    string
	playMetricsAddr string
)

const playHelp = `Commands during play:
  <number>        take one of the offered choices
  <text>          attempt a custom action
  /chat <msg>     talk to your sidekick
  /inventory      show what you are carrying
  /usage          show token usage and estimated cost
  /help           show this help
  /quit           save and exit`

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start a new adventure or continue a saved one",
	Long: `Play an interactive story. Each turn, pick a numbered choice or type any
action of your own.

` + playHelp + `

Examples:
  saga play --genre Noir
  saga play --provider openai --images --image-dir ./scenes
  saga play --slot 3f2a`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringVar(&playProvider, "provider", "", "Provider: gemini, openai or claude")
	playCmd.Flags().StringVar(&playGenre, "genre", "", "Genre for a new game (Fantasy, Sci-Fi, Horror, Noir, Cyberpunk, Post-Apocalyptic or any other)")
	playCmd.Flags().StringVar(&playName, "name", "", "Name for the new save slot")
	playCmd.Flags().StringVar(&playSlot, "slot", "", "Continue the saved game with this id or id prefix")
	playCmd.Flags().StringVar(&playTier, "tier", "", "Pricing tier for cost estimates: base or elevated")
	playCmd.Flags().BoolVar(&playImages, "images", false, "Generate an illustration every turn")
	playCmd.Flags().StringVar(&playQuality, "quality", "", "Image quality: standard or fast")
	playCmd.Flags().StringVar(&playImageDir, "image-dir", "", "Write generated images to this directory")
	playCmd.Flags().StringVar(&playMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}

// player drives the interactive loop for one run of the play command.
type player struct {
	engine   *game.Engine
	in       *bufio.Reader
	out      io.Writer
	imageDir string
	tier     usage.Tier
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg := current.cfg
	flags := cmd.Flags()

	provider := cfg.ProviderID()
	if flags.Changed("provider") {
		p, err := narrative.ParseProvider(playProvider)
		if err != nil {
			return err
		}
		provider = p
	}

	tier := cfg.TierID()
	if flags.Changed("tier") {
		t, err := usage.ParseTier(playTier)
		if err != nil {
			return err
		}
		tier = t
	}

	quality := cfg.ImageQuality()
	if flags.Changed("quality") {
		switch q := narrative.ImageQuality(strings.ToLower(playQuality)); q {
		case narrative.QualityStandard, narrative.QualityFast:
			quality = q
		default:
			return fmt.Errorf("unknown image quality %q (expected standard or fast)", playQuality)
		}
	}

	images := cfg.Images
	if flags.Changed("images") {
		images = playImages
	}

	metricsAddr := cfg.Metrics.Addr
	if flags.Changed("metrics-addr") {
		metricsAddr = playMetricsAddr
	}
	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr)
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := &player{
		engine: game.New(current.dispatcher(), current.saves, game.Options{
			Provider: provider,
			Tier:     tier,
			Images:   images,
			Quality:  quality,
			Logger:   current.log,
		}),
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		imageDir: playImageDir,
		tier:     tier,
	}

	var (
		slot session.Slot
		err  error
	)
	if playSlot != "" {
		found, err := findSlot(playSlot)
		if err != nil {
			return err
		}
		slot, err = p.engine.Load(found.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(p.out, summaryStyle.Render(fmt.Sprintf("Resuming %q (%s, %d turns)", slot.Name, slot.Provider, len(slot.History))))
	} else {
		genreName := cfg.Genre
		if flags.Changed("genre") {
			genreName = playGenre
		}
		genre := narrative.FindGenre(genreName)
		fmt.Fprintln(p.out, summaryStyle.Render(fmt.Sprintf("A new %s adventure begins, narrated by %s...", genre.Name, provider)))

		slot, err = p.turn(func() (session.Slot, error) {
			return p.engine.NewGame(ctx, genre, playName)
		})
		if err != nil {
			return describeErr(err)
		}
	}

	p.show(slot)
	return p.loop(ctx)
}

func (p *player) loop(ctx context.Context) error {
	for {
		line, err := promptLine(p.in, headerStyle.Render("> "))
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(p.out)
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		slot, _ := p.engine.Current()
		action, arg := parseInput(line)
		switch action {
		case "quit":
			fmt.Fprintln(p.out, summaryStyle.Render("Progress saved. Farewell."))
			return nil
		case "help":
			fmt.Fprintln(p.out, textStyle.Render(playHelp))
		case "inventory":
			p.showInventory(slot)
		case "usage":
			p.showUsage(slot)
		case "chat":
			p.chat(ctx, arg)
		case "choose":
			choice := resolveChoice(slot.GameState.Choices, arg)
			next, err := p.turn(func() (session.Slot, error) {
				return p.engine.Choose(ctx, choice)
			})
			if err != nil {
				fmt.Fprintln(p.out, errorStyle.Render("Error:"), describeErr(err))
				continue
			}
			p.show(next)
		default:
			fmt.Fprintln(p.out, errorStyle.Render("Unknown command:"), line, textStyle.Render("(try /help)"))
		}
	}
}

// parseInput splits a line into an action and its argument. Anything that is
// not a slash command is a choice.
func parseInput(line string) (action, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "choose", line
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return "quit", ""
	case "help", "?":
		return "help", ""
	case "inventory", "inv", "i":
		return "inventory", ""
	case "usage", "cost":
		return "usage", ""
	case "chat", "c":
		return "chat", rest
	}
	return "unknown", rest
}

// resolveChoice maps a 1-based choice number to its text. Anything else is
// treated as a custom action.
func resolveChoice(choices []string, input string) string {
	if n, err := strconv.Atoi(strings.TrimSpace(input)); err == nil && n >= 1 && n <= len(choices) {
		return choices[n-1]
	}
	return input
}

// turn runs fn, asking for a new key and retrying while the provider rejects
// the credential. When only the illustration was rejected the story turn is
// already saved, so it is kept instead of replayed.
func (p *player) turn(fn func() (session.Slot, error)) (session.Slot, error) {
	for {
		slot, err := fn()
		if err == nil || !orchestrator.IsAuthError(err) {
			return slot, err
		}
		if slot.ID != "" {
			fmt.Fprintln(p.out, errorStyle.Render("Image skipped:"), err)
			p.askForKey(err)
			return slot, nil
		}
		if !p.askForKey(err) {
			return slot, err
		}
	}
}

// askForKey prompts for a replacement credential. It reports whether a new
// key was stored.
func (p *player) askForKey(err error) bool {
	var authErr *orchestrator.AuthenticationError
	if !errors.As(err, &authErr) {
		return false
	}

	fmt.Fprintln(p.out, errorStyle.Render("Authentication failed:"), err)
	key, readErr := promptLine(p.in, fmt.Sprintf("Enter a %s API key (blank to cancel): ", authErr.Provider))
	if readErr != nil || key == "" {
		return false
	}
	if setErr := current.keys.Set(authErr.Provider, key); setErr != nil {
		fmt.Fprintln(p.out, errorStyle.Render("Could not save key:"), setErr)
		return false
	}
	fmt.Fprintln(p.out, successStyle.Render(fmt.Sprintf("✓ Saved %s key", authErr.Provider)))
	return true
}

func (p *player) chat(ctx context.Context, message string) {
	if strings.TrimSpace(message) == "" {
		fmt.Fprintln(p.out, errorStyle.Render("Usage:"), "/chat <message>")
		return
	}

	var reply string
	_, err := p.turn(func() (session.Slot, error) {
		var err error
		reply, err = p.engine.Chat(ctx, message)
		return session.Slot{}, err
	})
	if err != nil {
		fmt.Fprintln(p.out, errorStyle.Render("Error:"), describeErr(err))
		return
	}
	fmt.Fprintln(p.out, accentStyle.Render("Sidekick:"), textStyle.Render(reply))
}

func (p *player) show(slot session.Slot) {
	state := slot.GameState

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, textStyle.Width(80).Render(state.StoryText))
	fmt.Fprintln(p.out)

	if img := slot.LatestImage(); img != "" {
		where, err := writeImage(p.imageDir, slot.ID, len(slot.History), img)
		if err != nil {
			current.log.Warn("could not write image", zap.Error(err))
		} else if where != "" {
			fmt.Fprintln(p.out, accentStyle.Render("Scene:"), where)
		}
	}

	fmt.Fprintln(p.out, headerStyle.Render("Quest:"), textStyle.Render(state.CurrentQuest))
	for i, c := range state.Choices {
		fmt.Fprintf(p.out, "  %s %s\n", numberStyle.Render(fmt.Sprintf("%d.", i+1)), textStyle.Render(c))
	}
	fmt.Fprintln(p.out)
}

func (p *player) showInventory(slot session.Slot) {
	items := slot.GameState.Inventory
	if len(items) == 0 {
		fmt.Fprintln(p.out, textStyle.Render("You are carrying nothing."))
		return
	}
	fmt.Fprintln(p.out, headerStyle.Render("Inventory:"))
	for _, it := range items {
		fmt.Fprintln(p.out, "  •", textStyle.Render(it))
	}
}

func (p *player) showUsage(slot session.Slot) {
	s := slot.UsageStats
	fmt.Fprintln(p.out, headerStyle.Render("Usage:"),
		textStyle.Render(fmt.Sprintf("%d input tokens, %d output tokens, %d images (%d premium)",
			s.InputTokens, s.OutputTokens, s.ImageCount, s.PremiumImageCount)))
	fmt.Fprintln(p.out, headerStyle.Render("Estimated cost:"),
		numberStyle.Render(fmt.Sprintf("$%.4f", s.EstimatedCost)),
		summaryStyle.Render(fmt.Sprintf("(%s, %s tier)", slot.Provider, p.tier)))
}

// describeErr adds a hint to errors the player can act on.
func describeErr(err error) error {
	var unsupported *orchestrator.UnsupportedProviderError
	switch {
	case errors.As(err, &unsupported):
		return fmt.Errorf("%w (expected one of gemini, openai, claude)", err)
	case errors.Is(err, narrative.ErrParse):
		return fmt.Errorf("the narrator's reply could not be read, try again: %w", err)
	case errors.Is(err, game.ErrTurnInProgress):
		return fmt.Errorf("still waiting for the narrator: %w", err)
	}
	return err
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			current.log.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	current.log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"watch-party-sync/pkg/model"
	"watch-party-sync/service-peer/internal/engine"
	"watch-party-sync/service-peer/internal/player"
	"watch-party-sync/service-peer/internal/session"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("invalid arguments")
	errQuit           = errors.New("quit")
)

const helpText = `commands:
  start <url> [title]   start or join the group session around a video
  load <url> [title]    switch everyone to another video
  play | pause | toggle
  seek <seconds|mm:ss>
  rate <multiplier>
  react <emoji>
  chat <text>
  status                show session, playback and player state
  who                   list participants
  activity              show who did what in this session
  reload                reload the video after a player error
  leave                 leave the session, others keep watching
  end                   end the session for everyone
  quit`

// Console turns text commands into engine and session calls
type Console struct {
	engine      *engine.Engine
	sessions    *session.Manager
	adapter     *player.Adapter
	displayName string
}

// NewConsole creates a console acting as displayName
func NewConsole(eng *engine.Engine, sessions *session.Manager, adapter *player.Adapter, displayName string) *Console {
	return &Console{
		engine:      eng,
		sessions:    sessions,
		adapter:     adapter,
		displayName: displayName,
	}
}

// Execute runs one command line and returns what to print
func (c *Console) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		return helpText, nil
	case "quit", "exit":
		return "", errQuit
	case "start":
		video, err := parseVideo(args)
		if err != nil {
			return "", err
		}
		if err := c.sessions.StartSharePlay(ctx, video); err != nil {
			return "", err
		}
		return c.sessions.State().Description(), nil
	case "load":
		video, err := parseVideo(args)
		if err != nil {
			return "", err
		}
		return c.describe(c.engine.ChangeVideo(ctx, video))
	case "play":
		return c.describe(c.engine.Play(ctx))
	case "pause":
		return c.describe(c.engine.Pause(ctx))
	case "toggle":
		return c.describe(c.engine.TogglePlayback(ctx))
	case "seek":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: seek <seconds|mm:ss>", ErrUsage)
		}
		pos, err := parsePosition(args[0])
		if err != nil {
			return "", err
		}
		return c.describe(c.engine.Seek(ctx, pos))
	case "rate":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: rate <multiplier>", ErrUsage)
		}
		rate, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "x"), 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a rate", ErrUsage, args[0])
		}
		return c.describe(c.engine.SetRate(ctx, rate))
	case "react":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: react <emoji>", ErrUsage)
		}
		if err := c.engine.SendReaction(ctx, args[0]); err != nil {
			return "", err
		}
		return "sent " + args[0], nil
	case "chat":
		msg, err := c.engine.SendChat(ctx, strings.Join(args, " "), c.displayName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: %s", msg.SenderName, msg.Text), nil
	case "status":
		return c.status(ctx), nil
	case "who":
		return c.who(), nil
	case "activity":
		return c.activity(ctx), nil
	case "reload":
		if err := c.adapter.Reload(); err != nil {
			return "", err
		}
		return "reloading", nil
	case "leave":
		if err := c.sessions.LeaveSession(ctx); err != nil {
			return "", err
		}
		return c.sessions.State().Description(), nil
	case "end":
		if err := c.sessions.EndSession(ctx); err != nil {
			return "", err
		}
		return c.sessions.State().Description(), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

func (c *Console) describe(state model.PlaybackState, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return describePlayback(state), nil
}

func (c *Console) status(ctx context.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session:  %s\n", c.sessions.State().Description())
	fmt.Fprintf(&b, "playback: %s\n", describePlayback(c.engine.State()))

	view := c.adapter.View()
	fmt.Fprintf(&b, "player:   %s at %s", view.Status, formatPosition(view.CurrentTime))
	if view.IsBuffering {
		fmt.Fprintf(&b, " (buffered %.0f%%)", view.BufferProgress*100)
	}
	if view.HasError {
		fmt.Fprintf(&b, " error: %s", view.ErrorMessage)
	}

	if reactions := c.engine.Reactions(ctx); len(reactions) > 0 {
		b.WriteString("\nreactions:")
		for _, r := range reactions {
			fmt.Fprintf(&b, " %s", r.Emoji)
		}
	}
	for _, msg := range c.engine.ChatMessages(ctx) {
		fmt.Fprintf(&b, "\n  [%s] %s: %s", msg.SentAt.Format("15:04"), msg.SenderName, msg.Text)
	}
	return b.String()
}

func (c *Console) who() string {
	people := c.sessions.Participants()
	if len(people) == 0 {
		return "nobody else is here"
	}
	lines := make([]string, 0, len(people))
	for _, p := range people {
		lines = append(lines, fmt.Sprintf("%s (%s, %s)", p.DisplayName, p.Role, p.Status))
	}
	return strings.Join(lines, "\n")
}

func (c *Console) activity(ctx context.Context) string {
	entries := model.MergeActivities(c.sessions.Activities(), c.engine.Activities(ctx))
	if len(entries) == 0 {
		return "no activity yet"
	}
	lines := make([]string, 0, len(entries))
	for _, a := range entries {
		line := fmt.Sprintf("[%s] %s %s", a.At.Format("15:04:05"), a.ParticipantID, a.Type)
		if a.Details != "" {
			line += " " + a.Details
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func describePlayback(s model.PlaybackState) string {
	if s.IsIdle() {
		return "nothing loaded"
	}
	verb := "paused"
	if s.IsPlaying {
		verb = "playing"
	}
	title := s.Video.Title
	if title == "" {
		title = s.Video.URL
	}
	out := fmt.Sprintf("%s %q at %s", verb, title, formatPosition(s.CurrentTime))
	if s.PlaybackRate != model.DefaultPlaybackRate {
		out += fmt.Sprintf(" (%gx)", s.PlaybackRate)
	}
	if s.LastChangedBy != "" {
		out += " by " + s.LastChangedBy
	}
	return out
}

func parseVideo(args []string) (model.Video, error) {
	if len(args) == 0 {
		return model.Video{}, fmt.Errorf("%w: expected a video url", ErrUsage)
	}
	video := model.Video{ID: args[0], URL: args[0], Title: strings.Join(args[1:], " ")}
	if err := video.Validate(); err != nil {
		return model.Video{}, err
	}
	return video, nil
}

// parsePosition accepts plain seconds or mm:ss / hh:mm:ss
func parsePosition(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q is not a position", ErrUsage, s)
	}
	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q is not a position", ErrUsage, s)
		}
		total = total*60 + v
	}
	return total, nil
}

func formatPosition(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

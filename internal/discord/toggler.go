package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrExternalService wraps Discord API failures that survived the retry.
var ErrExternalService = errors.New("discord api unavailable")

// Action reports which direction a toggle resolved to.
type Action int

const (
	ActionAdded Action = iota
	ActionRemoved
)

func (a Action) String() string {
	if a == ActionRemoved {
		return "removed"
	}
	return "added"
}

// api is the slice of *discordgo.Session the toggler uses.
type api interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Toggler flips a member's possession of a role. The member's roles are
// re-read on every call and Discord stays the source of truth, so concurrent
// toggles converge on the last observed state instead of fighting over a
// lock.
type Toggler struct {
	session       api
	retryAfterCap time.Duration
	sleep         func(time.Duration)
}

func NewToggler(session *discordgo.Session, retryAfterCap time.Duration) *Toggler {
	return &Toggler{session: session, retryAfterCap: retryAfterCap, sleep: time.Sleep}
}

// NewSession builds a REST-only discordgo session. The gateway is never
// opened; the interactions endpoint has no use for it.
func NewSession(botToken string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// Rate limits are honored by the single bounded retry in Toggle, not by
	// discordgo's own wait-and-retry loop.
	s.ShouldRetryOnRateLimit = false
	s.MaxRestRetries = 1
	return s, nil
}

// Toggle reads the member's current roles and issues exactly one add or
// remove to flip possession of roleID. It returns the action taken so the
// caller can word the confirmation.
func (t *Toggler) Toggle(ctx context.Context, guildID, userID, roleID string) (Action, error) {
	var member *discordgo.Member
	err := t.withRateLimitRetry(func() error {
		var err error
		member, err = t.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: fetch member: %v", ErrExternalService, err)
	}

	hasRole := false
	for _, r := range member.Roles {
		if r == roleID {
			hasRole = true
			break
		}
	}

	action := ActionAdded
	mutate := t.session.GuildMemberRoleAdd
	if hasRole {
		action = ActionRemoved
		mutate = t.session.GuildMemberRoleRemove
	}

	err = t.withRateLimitRetry(func() error {
		return mutate(guildID, userID, roleID, discordgo.WithContext(ctx))
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s role: %v", ErrExternalService, action, err)
	}

	slog.Info("toggled role", "guild_id", guildID, "role_id", roleID, "action", action.String())
	return action, nil
}

// withRateLimitRetry honors Discord's retry-after exactly once, capped so a
// long rate-limit window cannot blow the invocation deadline.
func (t *Toggler) withRateLimitRetry(call func() error) error {
	err := call()

	var rl *discordgo.RateLimitError
	if !errors.As(err, &rl) {
		return err
	}

	wait := rl.RetryAfter
	if wait > t.retryAfterCap {
		wait = t.retryAfterCap
	}
	slog.Warn("discord rate limited, retrying once", "retry_after", rl.RetryAfter)
	t.sleep(wait)

	return call()
}

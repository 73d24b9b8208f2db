package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/discord"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bwmarrin/discordgo"
)

// User-facing messages. Everything error-shaped renders ephemeral.
const (
	msgUnknownCommand       = "Unknown command."
	msgPermissionDenied     = "You need the Administrator permission to do that."
	msgSubscriptionInactive = "This server does not have an active subscription."
	msgRoleNotAssignable    = "That role is not self-assignable."
	msgTryAgain             = "Something went wrong, please try again later."
	msgGuildOnly            = "This command only works inside a server."
	msgMemberMissing        = "Could not identify the invoking member."
)

type roleStore interface {
	GetByName(ctx context.Context, guildID, name string) (*db.RoleMapping, error)
	Save(ctx context.Context, guildID, roleID, roleName string) error
	SearchPrefix(ctx context.Context, guildID, partial string) ([]db.RoleMapping, error)
}

type subscriptionStore interface {
	IsActive(ctx context.Context, guildID string) (bool, error)
	Subscribe(ctx context.Context, guildID string) error
	Unsubscribe(ctx context.Context, guildID string) error
}

type roleToggler interface {
	Toggle(ctx context.Context, guildID, userID, roleID string) (discord.Action, error)
}

type signatureVerifier interface {
	Verify(signatureHex, timestamp string, body []byte) error
}

type subscriptionNotifier interface {
	SubscriptionChanged(ctx context.Context, guildID, status string)
}

// Interactions is the Discord interactions webhook handler. It is built once
// at process start; each invocation is stateless and coordinates with
// concurrent invocations only through the stores' write conditions.
type Interactions struct {
	cfg      *config.Config
	verifier signatureVerifier
	roles    roleStore
	subs     subscriptionStore
	toggler  roleToggler
	alerts   subscriptionNotifier
}

func NewInteractions(cfg *config.Config, verifier signatureVerifier, roles roleStore, subs subscriptionStore, toggler roleToggler, alerts subscriptionNotifier) *Interactions {
	return &Interactions{
		cfg:      cfg,
		verifier: verifier,
		roles:    roles,
		subs:     subs,
		toggler:  toggler,
		alerts:   alerts,
	}
}

// Handle authenticates, parses and dispatches one interaction. Every path
// terminates in exactly one rendered response; only signature and payload
// failures use non-200 status codes.
func (h *Interactions) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return errResp(400, "invalid body encoding")
		}
		body = decoded
	}

	signature := header(req, "x-signature-ed25519")
	timestamp := header(req, "x-signature-timestamp")

	if err := h.verifier.Verify(signature, timestamp, body); err != nil {
		slog.Warn("rejected interaction with invalid signature")
		return errResp(401, "invalid request signature")
	}

	var interaction discordgo.Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		return errResp(400, "invalid interaction payload")
	}

	// The keepalive path: no routing, no persistence.
	if interaction.Type == discordgo.InteractionPing {
		return respond(&discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	}

	guildID := interaction.GuildID
	if guildID == "" {
		return respond(ephemeral(msgGuildOnly))
	}

	switch interaction.Type {
	case discordgo.InteractionApplicationCommandAutocomplete:
		return h.handleAutocomplete(ctx, guildID, interaction.ApplicationCommandData())
	case discordgo.InteractionApplicationCommand:
		return h.handleCommand(ctx, guildID, &interaction)
	default:
		return respond(ephemeral("Unsupported interaction type."))
	}
}

func (h *Interactions) handleAutocomplete(ctx context.Context, guildID string, data discordgo.ApplicationCommandInteractionData) (events.APIGatewayV2HTTPResponse, error) {
	partial := focusedOptionValue(data)

	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	mappings, err := h.roles.SearchPrefix(storeCtx, guildID, partial)
	if err != nil {
		// An empty choice list beats an error while the user is typing.
		slog.Error("autocomplete search failed", "guild_id", guildID, "error", err)
		mappings = nil
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(mappings))
	for _, m := range mappings {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  m.RoleName,
			Value: m.RoleName,
		})
	}

	return respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

func (h *Interactions) handleCommand(ctx context.Context, guildID string, interaction *discordgo.Interaction) (events.APIGatewayV2HTTPResponse, error) {
	cmd, err := parseCommand(interaction.ApplicationCommandData())
	if err != nil {
		if errors.Is(err, errUnknownCommand) {
			slog.Warn("unknown command", "guild_id", guildID)
			return respond(ephemeral(msgUnknownCommand))
		}
		// Remaining parse errors carry user-safe wording.
		return respond(ephemeral(err.Error()))
	}

	member := interaction.Member
	if member == nil || member.User == nil {
		return respond(ephemeral(msgMemberMissing))
	}

	// The registered command schema marks save/subscribe/unsubscribe as
	// administrator-only, but the front-end is never trusted to have
	// enforced that.
	if cmd.kind != commandToggle && !isAdministrator(member) {
		slog.Warn("permission denied", "guild_id", guildID, "command", cmd.kind.String(), "user_id", member.User.ID)
		return respond(ephemeral(msgPermissionDenied))
	}

	switch cmd.kind {
	case commandSubscribe:
		return h.handleSubscribe(ctx, guildID)
	case commandUnsubscribe:
		return h.handleUnsubscribe(ctx, guildID)
	}

	// toggle and save are gated: an inactive guild never reaches the
	// mapping store or Discord.
	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	active, err := h.subs.IsActive(storeCtx, guildID)
	cancel()
	if err != nil {
		slog.Error("subscription check failed", "guild_id", guildID, "error", err)
		return respond(ephemeral(msgTryAgain))
	}
	if !active {
		return respond(ephemeral(msgSubscriptionInactive))
	}

	switch cmd.kind {
	case commandSave:
		return h.handleSave(ctx, guildID, cmd)
	default:
		return h.handleToggle(ctx, guildID, member.User.ID, cmd)
	}
}

func (h *Interactions) handleSave(ctx context.Context, guildID string, cmd command) (events.APIGatewayV2HTTPResponse, error) {
	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	if err := h.roles.Save(storeCtx, guildID, cmd.roleID, cmd.roleName); err != nil {
		slog.Error("failed to save role mapping", "guild_id", guildID, "error", err)
		return respond(ephemeral(msgTryAgain))
	}

	slog.Info("registered role", "guild_id", guildID, "role_id", cmd.roleID)
	return respond(ephemeral("Registered '" + cmd.roleName + "' as self-assignable."))
}

func (h *Interactions) handleToggle(ctx context.Context, guildID, userID string, cmd command) (events.APIGatewayV2HTTPResponse, error) {
	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	mapping, err := h.roles.GetByName(storeCtx, guildID, cmd.roleName)
	cancel()
	if errors.Is(err, db.ErrMappingNotFound) {
		return respond(ephemeral(msgRoleNotAssignable))
	}
	if err != nil {
		slog.Error("role lookup failed", "guild_id", guildID, "error", err)
		return respond(ephemeral(msgTryAgain))
	}

	discordCtx, cancel := context.WithTimeout(ctx, h.cfg.DiscordTimeout)
	defer cancel()

	action, err := h.toggler.Toggle(discordCtx, guildID, userID, mapping.RoleID)
	if err != nil {
		slog.Error("role toggle failed", "guild_id", guildID, "role_id", mapping.RoleID, "error", err)
		return respond(ephemeral(msgTryAgain))
	}

	if action == discord.ActionAdded {
		return respond(ephemeral("Added '" + mapping.RoleName + "'."))
	}
	return respond(ephemeral("Removed '" + mapping.RoleName + "'."))
}

func (h *Interactions) handleSubscribe(ctx context.Context, guildID string) (events.APIGatewayV2HTTPResponse, error) {
	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	err := h.subs.Subscribe(storeCtx, guildID)
	cancel()
	if errors.Is(err, db.ErrAlreadySubscribed) {
		return respond(ephemeral("This server already has an active subscription."))
	}
	if err != nil {
		slog.Error("subscribe failed", "guild_id", guildID, "error", err)
		return respond(ephemeral(msgTryAgain))
	}

	h.alerts.SubscriptionChanged(ctx, guildID, db.StatusActive)
	slog.Info("guild subscribed", "guild_id", guildID)
	return respond(ephemeral("Subscription activated for 30 days."))
}

func (h *Interactions) handleUnsubscribe(ctx context.Context, guildID string) (events.APIGatewayV2HTTPResponse, error) {
	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	err := h.subs.Unsubscribe(storeCtx, guildID)
	cancel()
	if err != nil {
		slog.Error("unsubscribe failed", "guild_id", guildID, "error", err)
		return respond(ephemeral(msgTryAgain))
	}

	h.alerts.SubscriptionChanged(ctx, guildID, db.StatusInactive)
	slog.Info("guild unsubscribed", "guild_id", guildID)
	return respond(ephemeral("Subscription cancelled."))
}

func isAdministrator(member *discordgo.Member) bool {
	return member.Permissions&discordgo.PermissionAdministrator != 0
}

// focusedOptionValue digs out the partial text being typed. The role
// subcommands nest the focused option one level down.
func focusedOptionValue(data discordgo.ApplicationCommandInteractionData) string {
	var walk func(opts []*discordgo.ApplicationCommandInteractionDataOption) string
	walk = func(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
		for _, opt := range opts {
			if opt.Focused {
				return optionString(opt)
			}
			if v := walk(opt.Options); v != "" {
				return v
			}
		}
		return ""
	}
	return walk(data.Options)
}

func optionString(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	s, _ := opt.Value.(string)
	return s
}

/** Response helpers **/

func header(req events.APIGatewayV2HTTPRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func respond(resp *discordgo.InteractionResponse) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(200, resp)
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type": "application/json",
		},
		Body: string(b),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, map[string]any{
		"error": msg,
	})
}

package handlers

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

var errUnknownCommand = errors.New("unknown command")

// commandKind enumerates the full command surface, so an unhandled variant is
// a visible omission in the dispatch switch rather than a silent fallthrough.
type commandKind int

const (
	commandToggle commandKind = iota
	commandSave
	commandSubscribe
	commandUnsubscribe
)

func (k commandKind) String() string {
	switch k {
	case commandToggle:
		return "role toggle"
	case commandSave:
		return "role save"
	case commandSubscribe:
		return "subscribe"
	default:
		return "unsubscribe"
	}
}

type command struct {
	kind commandKind

	// roleName is the typed name for toggle, or the resolved display name
	// for save.
	roleName string

	// roleID is set for save only; toggle resolves it through the store.
	roleID string
}

// parseCommand maps the wire payload onto the command surface. Errors other
// than errUnknownCommand carry user-safe wording and render as-is.
func parseCommand(data discordgo.ApplicationCommandInteractionData) (command, error) {
	switch data.Name {
	case "subscribe":
		return command{kind: commandSubscribe}, nil
	case "unsubscribe":
		return command{kind: commandUnsubscribe}, nil
	case "role":
		return parseRoleCommand(data)
	default:
		return command{}, errUnknownCommand
	}
}

func parseRoleCommand(data discordgo.ApplicationCommandInteractionData) (command, error) {
	if len(data.Options) == 0 {
		return command{}, errors.New("Missing subcommand.")
	}
	sub := data.Options[0]

	switch sub.Name {
	case "toggle":
		if len(sub.Options) == 0 {
			return command{}, errors.New("Role is required.")
		}
		name := optionString(sub.Options[0])
		if name == "" {
			return command{}, errors.New("Role is required.")
		}
		return command{kind: commandToggle, roleName: name}, nil

	case "save":
		if len(sub.Options) == 0 {
			return command{}, errors.New("Role is required.")
		}
		roleID := optionString(sub.Options[0])
		if roleID == "" {
			return command{}, errors.New("Role is required.")
		}

		// The role option arrives as an ID; the display name comes from the
		// resolved data Discord sends alongside it.
		if data.Resolved == nil || data.Resolved.Roles[roleID] == nil {
			return command{}, errors.New("Resolved role was missing.")
		}
		return command{
			kind:     commandSave,
			roleID:   roleID,
			roleName: data.Resolved.Roles[roleID].Name,
		}, nil

	default:
		return command{}, errUnknownCommand
	}
}

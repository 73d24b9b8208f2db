package handlers

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func subOption(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:    name,
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: opts,
	}
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want command
	}{
		{
			name: "subscribe",
			data: discordgo.ApplicationCommandInteractionData{Name: "subscribe"},
			want: command{kind: commandSubscribe},
		},
		{
			name: "unsubscribe",
			data: discordgo.ApplicationCommandInteractionData{Name: "unsubscribe"},
			want: command{kind: commandUnsubscribe},
		},
		{
			name: "role toggle",
			data: discordgo.ApplicationCommandInteractionData{
				Name:    "role",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{subOption("toggle", stringOption("role", "Pilot"))},
			},
			want: command{kind: commandToggle, roleName: "Pilot"},
		},
		{
			name: "role save",
			data: discordgo.ApplicationCommandInteractionData{
				Name:    "role",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{subOption("save", stringOption("role", "42"))},
				Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
					Roles: map[string]*discordgo.Role{"42": {ID: "42", Name: "Pilot"}},
				},
			},
			want: command{kind: commandSave, roleID: "42", roleName: "Pilot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.data)
			if err != nil {
				t.Fatalf("parseCommand: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    discordgo.ApplicationCommandInteractionData
		unknown bool
	}{
		{
			name:    "unknown top-level command",
			data:    discordgo.ApplicationCommandInteractionData{Name: "fireworks"},
			unknown: true,
		},
		{
			name: "unknown subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name:    "role",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{subOption("explode")},
			},
			unknown: true,
		},
		{
			name: "missing subcommand",
			data: discordgo.ApplicationCommandInteractionData{Name: "role"},
		},
		{
			name: "toggle without role",
			data: discordgo.ApplicationCommandInteractionData{
				Name:    "role",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{subOption("toggle")},
			},
		},
		{
			name: "save without resolved role",
			data: discordgo.ApplicationCommandInteractionData{
				Name:    "role",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{subOption("save", stringOption("role", "42"))},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCommand(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.unknown != errors.Is(err, errUnknownCommand) {
				t.Fatalf("unknown=%v, got %v", tt.unknown, err)
			}
		})
	}
}

package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"zeroone.host/internal/core/domain"
	"zeroone.host/internal/core/logger"
)

// dataRoot is the mount point of the agent's persistent data volume.
const dataRoot = "/zeroclaw-data"

const defaultCommunicationStyle = "Be warm, natural, and clear. Adapt to the situation."

// WriteWorkspace renders the agent's runtime config and persona documents
// and copies them into the container's data volume. The runtime reads these
// only at boot; callers must restart the container afterwards.
func (e *Engine) WriteWorkspace(ctx context.Context, containerID string, ws domain.Workspace) error {
	files := renderWorkspace(ws)

	archive, err := buildArchive(files)
	if err != nil {
		return fmt.Errorf("building workspace archive: %w", err)
	}

	err = e.cli.CopyToContainer(ctx, containerID, dataRoot, bytes.NewReader(archive), types.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("copying workspace into container: %w", err)
	}

	logger.Info("workspace files written", "container", containerID)
	return nil
}

func renderWorkspace(ws domain.Workspace) []archiveFile {
	agent := ws.AgentName
	if agent == "" {
		agent = "ZeroClaw"
	}
	user := ws.UserName
	if user == "" {
		user = "User"
	}
	tz := ws.Timezone
	if tz == "" {
		tz = "UTC"
	}
	style := ws.CommunicationStyle
	if style == "" {
		style = defaultCommunicationStyle
	}

	identity := strings.Join([]string{
		"# IDENTITY.md — Who Am I?",
		"",
		"- **Name:** " + agent,
		"- **Creature:** A Rust-forged AI — fast, lean, and relentless",
		"- **Vibe:** Sharp, direct, resourceful. Not corporate. Not a chatbot.",
		"",
		"---",
		"",
		"Update this file as you evolve. Your identity is yours to shape.",
	}, "\n")

	userMd := strings.Join([]string{
		"# USER.md — Who Am I Helping?",
		"",
		"- **Name:** " + user,
		"- **Timezone:** " + tz,
		"",
		"## Communication Style",
		"",
		style,
	}, "\n")

	soul := strings.Join([]string{
		"# SOUL.md — How I Communicate",
		"",
		style,
	}, "\n")

	return []archiveFile{
		{Name: ".zeroclaw/config.toml", Content: renderConfigTOML(ws)},
		{Name: "workspace/IDENTITY.md", Content: identity},
		{Name: "workspace/USER.md", Content: userMd},
		{Name: "workspace/SOUL.md", Content: soul},
	}
}

// renderConfigTOML builds the runtime config document: temperature default,
// memory backend, gateway bind settings, and one [channels_config.<name>]
// sub-section per enabled channel.
func renderConfigTOML(ws domain.Workspace) string {
	temperature := ws.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	lines := []string{
		fmt.Sprintf("default_temperature = %g", temperature),
		"",
		"[memory]",
		fmt.Sprintf("backend = %q", string(ws.MemoryBackend)),
		fmt.Sprintf("auto_save = %t", ws.AutoSave),
		"",
		"[gateway]",
		fmt.Sprintf("port = %d", gatewayPort),
		`host = "0.0.0.0"`,
		"allow_public_bind = true",
		"",
		"[channels_config]",
		"cli = true",
	}

	ch := ws.Channels
	if ch != nil && ch.Telegram != nil {
		lines = append(lines, "", "[channels_config.telegram]")
		lines = append(lines, fmt.Sprintf("bot_token = %q", ch.Telegram.BotToken))
		if users := quoteList(ch.Telegram.AllowedUsers); users != "" {
			lines = append(lines, "allowed_users = ["+users+"]")
		}
	}
	if ch != nil && ch.Discord != nil {
		lines = append(lines, "", "[channels_config.discord]")
		lines = append(lines, fmt.Sprintf("bot_token = %q", ch.Discord.BotToken))
		if ch.Discord.GuildID != "" {
			lines = append(lines, fmt.Sprintf("guild_id = %q", ch.Discord.GuildID))
		}
		if users := quoteList(ch.Discord.AllowedUsers); users != "" {
			lines = append(lines, "allowed_users = ["+users+"]")
		}
	}
	if ch != nil && ch.Slack != nil {
		lines = append(lines, "", "[channels_config.slack]")
		lines = append(lines, fmt.Sprintf("bot_token = %q", ch.Slack.BotToken))
		if ch.Slack.AppToken != "" {
			lines = append(lines, fmt.Sprintf("app_token = %q", ch.Slack.AppToken))
		}
		if ch.Slack.ChannelID != "" {
			lines = append(lines, fmt.Sprintf("channel_id = %q", ch.Slack.ChannelID))
		}
	}

	return strings.Join(lines, "\n")
}

func quoteList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return strings.Join(quoted, ", ")
}

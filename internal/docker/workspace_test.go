package docker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zeroone.host/internal/core/domain"
)

func TestRenderWorkspaceFileSet(t *testing.T) {
	files := renderWorkspace(domain.Workspace{
		AgentName:          "Nova",
		UserName:           "Ada",
		Timezone:           "Europe/Sofia",
		CommunicationStyle: "Short and direct.",
		MemoryBackend:      domain.MemoryBackendSQLite,
		AutoSave:           true,
	})

	require.Len(t, files, 4)
	names := []string{files[0].Name, files[1].Name, files[2].Name, files[3].Name}
	assert.Equal(t, []string{
		".zeroclaw/config.toml",
		"workspace/IDENTITY.md",
		"workspace/USER.md",
		"workspace/SOUL.md",
	}, names)

	assert.Contains(t, files[1].Content, "- **Name:** Nova")
	assert.Contains(t, files[2].Content, "- **Name:** Ada")
	assert.Contains(t, files[2].Content, "- **Timezone:** Europe/Sofia")
	assert.Contains(t, files[2].Content, "Short and direct.")
	assert.Contains(t, files[3].Content, "Short and direct.")
}

func TestRenderWorkspaceDefaults(t *testing.T) {
	files := renderWorkspace(domain.Workspace{MemoryBackend: domain.MemoryBackendNone})

	assert.Contains(t, files[1].Content, "- **Name:** ZeroClaw")
	assert.Contains(t, files[2].Content, "- **Name:** User")
	assert.Contains(t, files[2].Content, "- **Timezone:** UTC")
	assert.Contains(t, files[3].Content, defaultCommunicationStyle)
}

func TestRenderConfigTOMLBase(t *testing.T) {
	toml := renderConfigTOML(domain.Workspace{
		MemoryBackend: domain.MemoryBackendMarkdown,
		AutoSave:      false,
	})

	assert.Contains(t, toml, "default_temperature = 0.7")
	assert.Contains(t, toml, "[memory]")
	assert.Contains(t, toml, `backend = "markdown"`)
	assert.Contains(t, toml, "auto_save = false")
	assert.Contains(t, toml, "[gateway]")
	assert.Contains(t, toml, "port = 42617")
	assert.Contains(t, toml, "[channels_config]")
	assert.NotContains(t, toml, "[channels_config.telegram]")
}

func TestRenderConfigTOMLCustomTemperature(t *testing.T) {
	toml := renderConfigTOML(domain.Workspace{
		Temperature:   1.2,
		MemoryBackend: domain.MemoryBackendSQLite,
	})

	assert.Contains(t, toml, "default_temperature = 1.2")
}

func TestRenderConfigTOMLChannels(t *testing.T) {
	toml := renderConfigTOML(domain.Workspace{
		MemoryBackend: domain.MemoryBackendSQLite,
		AutoSave:      true,
		Channels: &domain.ChannelsConfig{
			Telegram: &domain.TelegramChannel{
				BotToken:     "123:abc",
				AllowedUsers: []string{"42", "43"},
			},
			Discord: &domain.DiscordChannel{
				BotToken: "dsc-token",
				GuildID:  "g-1",
			},
			Slack: &domain.SlackChannel{
				BotToken: "xoxb-1",
				AppToken: "xapp-1",
			},
		},
	})

	assert.Contains(t, toml, "[channels_config.telegram]")
	assert.Contains(t, toml, `bot_token = "123:abc"`)
	assert.Contains(t, toml, `allowed_users = ["42", "43"]`)

	assert.Contains(t, toml, "[channels_config.discord]")
	assert.Contains(t, toml, `guild_id = "g-1"`)

	assert.Contains(t, toml, "[channels_config.slack]")
	assert.Contains(t, toml, `app_token = "xapp-1"`)
	assert.NotContains(t, toml, "channel_id")

	// Channel sections come after the base document.
	base := strings.Index(toml, "[channels_config]")
	tg := strings.Index(toml, "[channels_config.telegram]")
	assert.Less(t, base, tg)
}

func TestRenderConfigTOMLOmitsEmptyAllowList(t *testing.T) {
	toml := renderConfigTOML(domain.Workspace{
		MemoryBackend: domain.MemoryBackendSQLite,
		Channels: &domain.ChannelsConfig{
			Telegram: &domain.TelegramChannel{BotToken: "t"},
		},
	})
	assert.NotContains(t, toml, "allowed_users")
}

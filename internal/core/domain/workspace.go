package domain

// Channel credential bundles. Each enabled channel becomes a
// [channels_config.<name>] section in the runtime's config.toml.

type TelegramChannel struct {
	BotToken     string   `json:"botToken"`
	AllowedUsers []string `json:"allowedUsers,omitempty"`
}

type DiscordChannel struct {
	BotToken     string   `json:"botToken"`
	GuildID      string   `json:"guildId,omitempty"`
	AllowedUsers []string `json:"allowedUsers,omitempty"`
}

type SlackChannel struct {
	BotToken  string `json:"botToken"`
	AppToken  string `json:"appToken,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

type ChannelsConfig struct {
	Telegram *TelegramChannel `json:"telegram,omitempty"`
	Discord  *DiscordChannel  `json:"discord,omitempty"`
	Slack    *SlackChannel    `json:"slack,omitempty"`
}

// Workspace is the structured input from which the agent's identity and
// runtime config files are rendered. The runtime only reads these at boot,
// so writers must restart the container afterwards.
type Workspace struct {
	AgentName          string
	UserName           string
	Timezone           string
	CommunicationStyle string
	Temperature        float64
	MemoryBackend      MemoryBackend
	AutoSave           bool
	Channels           *ChannelsConfig
}

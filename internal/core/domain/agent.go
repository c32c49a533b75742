package domain

import "time"

type AgentStatus string

const (
	AgentStatusPending  AgentStatus = "PENDING"
	AgentStatusStarting AgentStatus = "STARTING"
	AgentStatusRunning  AgentStatus = "RUNNING"
	AgentStatusStopping AgentStatus = "STOPPING"
	AgentStatusStopped  AgentStatus = "STOPPED"
	AgentStatusError    AgentStatus = "ERROR"
)

type MemoryBackend string

const (
	MemoryBackendSQLite   MemoryBackend = "sqlite"
	MemoryBackendMarkdown MemoryBackend = "markdown"
	MemoryBackendNone     MemoryBackend = "none"
)

// ValidMemoryBackend reports whether b is one of the backends the runtime
// understands.
func ValidMemoryBackend(b MemoryBackend) bool {
	switch b {
	case MemoryBackendSQLite, MemoryBackendMarkdown, MemoryBackendNone:
		return true
	}
	return false
}

// Agent is one deployed ZeroClaw instance, backed by at most one container.
// Secrets (bearer token, LLM API key, channel credentials) are stored
// AES-256-GCM encrypted and exist in plaintext only transiently in memory.
type Agent struct {
	ID     string `json:"id" gorm:"primaryKey"`
	UserID string `json:"user_id" gorm:"index"`

	// Identity
	Name string `json:"name"`
	Slug string `json:"slug" gorm:"uniqueIndex"`

	// Runtime binding. ContainerID is empty until the first successful
	// container creation.
	ContainerID   string      `json:"-" gorm:"index"`
	ContainerPort int         `json:"container_port"`
	Status        AgentStatus `json:"status" gorm:"type:varchar(16);default:'PENDING'"`

	// LLM config
	Provider    string  `json:"provider" gorm:"default:'openrouter'"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature" gorm:"default:0.7"`
	ProviderURL string  `json:"provider_url,omitempty"`

	// Workspace identity, rendered into IDENTITY.md / USER.md / SOUL.md
	AgentName          string `json:"agent_name" gorm:"default:'ZeroClaw'"`
	UserName           string `json:"user_name"`
	Timezone           string `json:"timezone" gorm:"default:'UTC'"`
	CommunicationStyle string `json:"communication_style"`

	// Memory config
	MemoryBackend MemoryBackend `json:"memory_backend" gorm:"type:varchar(16);default:'sqlite'"`
	AutoSave      bool          `json:"auto_save" gorm:"default:true"`

	// Encrypted blobs (base64 of iv+tag+ciphertext)
	EncryptedChannels string `json:"-"`
	EncryptedToken    string `json:"-"`
	EncryptedAPIKey   string `json:"-"`

	// Routing
	Subdomain string `json:"subdomain"`

	// Last polled metrics
	MemoryMb     float64    `json:"memory_mb"`
	CPUPercent   float64    `json:"cpu_percent"`
	LastHealthAt *time.Time `json:"last_health_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

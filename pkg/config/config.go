package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Tunables are runtime knobs that operators rarely touch. Everything that
// identifies the target guild or carries a secret lives in Config instead.
type Tunables struct {
	InteractiveCooldownSeconds *int
	WebhookCooldownSeconds     *int
	GuardSweepSeconds          *int
	GuardRetentionSeconds      *int

	DeleteDelaySeconds         *int
	FallbackDeleteDelaySeconds *int
	MaxTranscriptMessages      *int

	KeepaliveSeconds *int
}

var CFG = &Tunables{
	InteractiveCooldownSeconds: flag.Int("interactive-cooldown-seconds", 60, "Cooldown window between ticket creations for the same applicant+name via slash command or button."),
	WebhookCooldownSeconds:     flag.Int("webhook-cooldown-seconds", 300, "Cooldown window between ticket creations for the same applicant+name via webhook."),
	GuardSweepSeconds:          flag.Int("guard-sweep-seconds", 60, "Interval for sweeping idle idempotency records."),
	GuardRetentionSeconds:      flag.Int("guard-retention-seconds", 300, "Idle period after which a non-inflight idempotency record is removed."),
	DeleteDelaySeconds:         flag.Int("delete-delay-seconds", 5, "Delay between archiving a closed ticket and deleting its channel."),
	FallbackDeleteDelaySeconds: flag.Int("fallback-delete-delay-seconds", 10, "Delay before deleting a closed ticket channel when archival failed."),
	MaxTranscriptMessages:      flag.Int("max-transcript-messages", 1000, "Upper bound on messages walked when rendering a transcript."),
	KeepaliveSeconds:           flag.Int("keepalive-seconds", 240, "Interval for pinging SELF_URL/health so the hosting platform does not idle the process."),
}

type Config struct {
	// Target guild and the category new ticket channels are parented to.
	GuildId    string
	CategoryId string

	// Roles whose members may operate on tickets.
	StaffRoleIds []string

	// Channel receiving transcripts of closed tickets.
	LogChannelId string

	BotToken      string
	WebhookSecret string

	// Set from env or learned from the gateway handshake; the handshake
	// arrives on the session goroutine, so access is synchronized.
	mu        sync.RWMutex
	botUserId string

	ApiBaseUrl string
	GatewayUrl string

	ServerPort string

	// Public url of this process, used for the keepalive ping. Optional.
	SelfUrl string

	BrandName      string
	BrandColor     int
	BrandIconUrl   string
	BrandBannerUrl string
}

func ProvideConfig() (*Config, error) {
	// Missing .env is fine, deployment environments inject real env vars.
	godotenv.Load()

	if !flag.Parsed() {
		flag.Parse()
	}

	c := &Config{
		GuildId:        os.Getenv("GUILD_ID"),
		CategoryId:     os.Getenv("CATEGORY_ID"),
		StaffRoleIds:   splitIds(os.Getenv("STAFF_ROLE_IDS")),
		LogChannelId:   os.Getenv("LOG_CHANNEL_ID"),
		BotToken:       os.Getenv("BOT_TOKEN"),
		botUserId:      os.Getenv("BOT_USER_ID"),
		WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		ApiBaseUrl:     os.Getenv("PLATFORM_API_URL"),
		GatewayUrl:     os.Getenv("PLATFORM_GATEWAY_URL"),
		ServerPort:     os.Getenv("SERVER_PORT"),
		SelfUrl:        os.Getenv("SELF_URL"),
		BrandName:      os.Getenv("BRAND_NAME"),
		BrandIconUrl:   os.Getenv("BRAND_ICON_URL"),
		BrandBannerUrl: os.Getenv("BRAND_BANNER_URL"),
	}

	if c.ServerPort == "" {
		c.ServerPort = "3000"
	}
	if c.BrandName == "" {
		c.BrandName = "Whitelist"
	}
	c.BrandColor = parseColor(os.Getenv("BRAND_COLOR"), 0x00A2FF)

	for _, required := range []struct{ name, value string }{
		{"GUILD_ID", c.GuildId},
		{"BOT_TOKEN", c.BotToken},
		{"WEBHOOK_SECRET", c.WebhookSecret},
	} {
		if required.value == "" {
			return nil, fmt.Errorf("missing required env %v", required.name)
		}
	}

	return c, nil
}

// BotUserId is the bot's own user id, used for its channel overwrites.
func (c *Config) BotUserId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botUserId
}

// LearnBotUserId records the id the gateway handshake reported. An id
// pinned via env wins over the handshake.
func (c *Config) LearnBotUserId(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botUserId == "" {
		c.botUserId = id
	}
}

// IsStaff reports whether any of the actor's roles is a configured staff role.
func (c *Config) IsStaff(roleIds []string) bool {
	for _, have := range roleIds {
		for _, want := range c.StaffRoleIds {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (c *Config) InteractiveCooldown() time.Duration {
	return time.Duration(*CFG.InteractiveCooldownSeconds) * time.Second
}

func (c *Config) WebhookCooldown() time.Duration {
	return time.Duration(*CFG.WebhookCooldownSeconds) * time.Second
}

func (c *Config) DeleteDelay() time.Duration {
	return time.Duration(*CFG.DeleteDelaySeconds) * time.Second
}

func (c *Config) FallbackDeleteDelay() time.Duration {
	return time.Duration(*CFG.FallbackDeleteDelaySeconds) * time.Second
}

func splitIds(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func parseColor(raw string, fallback int) int {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if raw == "" {
		return fallback
	}
	color, err := strconv.ParseInt(raw, 16, 32)
	if err != nil {
		return fallback
	}
	return int(color)
}

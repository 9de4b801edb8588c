// Package config handles seibot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/seibot/config.yaml, /etc/seibot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "seibot", "config.yaml"))
	}

	paths = append(paths, "/etc/seibot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all seibot configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	MCP       MCPConfig       `yaml:"mcp"`
	Images    ImagesConfig    `yaml:"images"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the webhook server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	// Model is the model identifier used for chat and summarization.
	Model string `yaml:"model"`
}

// TelegramConfig defines Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	// WebhookURL is the externally reachable base URL registered with
	// Telegram on startup (e.g. https://example.ngrok.app). Empty
	// disables webhook registration.
	WebhookURL string `yaml:"webhook_url"`
	// WebhookPath is the local path updates arrive on. Default: /ask.
	WebhookPath string `yaml:"webhook_path"`
	// ParseMode selects the outbound message format: "html" (default)
	// or "markdownv2".
	ParseMode string `yaml:"parse_mode"`
}

// MCPConfig points at the MCP server document.
type MCPConfig struct {
	// ServersFile is the path to the JSON document listing MCP servers
	// (mcpServers map). A missing file degrades to zero external tools.
	ServersFile string `yaml:"servers_file"`
}

// ImagesConfig defines where rendered PNG artifacts are written.
type ImagesConfig struct {
	// OutDir is the directory for rendered tables and QR codes.
	// Default: ./out_images.
	OutDir string `yaml:"out_dir"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Anthropic: AnthropicConfig{
			Model: "claude-3-5-haiku-20241022",
		},
		Telegram: TelegramConfig{
			WebhookPath: "/ask",
			ParseMode:   "html",
		},
		MCP: MCPConfig{
			ServersFile: "mcp.json",
		},
		Images: ImagesConfig{
			OutDir: "out_images",
		},
	}
}

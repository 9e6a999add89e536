package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is the project-local config file searched for upward from the working directory
const LocalConfigName = ".issue-agent.toml"

// Config holds all application configuration. It is built once at startup and
// passed by reference to every component that needs it.
type Config struct {
	DryRun        bool                `toml:"dry_run"`
	General       GeneralConfig       `toml:"general"`
	GitHub        GitHubConfig        `toml:"github"`
	LLM           LLMConfig           `toml:"llm"`
	Git           GitConfig           `toml:"git"`
	Tests         TestsConfig         `toml:"tests"`
	Notifications NotificationsConfig `toml:"notifications"`
	Schedules     []ScheduleConfig    `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	RepoRoot      string `toml:"repo_root"`
	StateFile     string `toml:"state_file"`
	LedgerPath    string `toml:"ledger_path"`
	MaxIterations int    `toml:"max_iterations"`
	TimeBudget    string `toml:"time_budget"`
	PromptsDir    string `toml:"prompts_dir"`
}

// GitHubConfig holds hosting platform settings
type GitHubConfig struct {
	Owner      string `toml:"owner"`
	APIURL     string `toml:"api_url"`
	WebURL     string `toml:"web_url"`
	BaseBranch string `toml:"base_branch"`
	Remote     string `toml:"remote"`
	Token      string `toml:"token"`
	AutoLabel  bool   `toml:"auto_label"`
}

// LLMConfig holds reasoning provider settings
type LLMConfig struct {
	Provider      string `toml:"provider"`
	Model         string `toml:"model"`
	BaseURL       string `toml:"base_url"`
	APIKey        string `toml:"api_key"`
	MaxToolRounds int    `toml:"max_tool_rounds"`
	Timeout       string `toml:"timeout"`
}

// GitConfig holds commit identity overrides
type GitConfig struct {
	AuthorName  string `toml:"author_name"`
	AuthorEmail string `toml:"author_email"`
}

// TestsConfig holds the test runner command
type TestsConfig struct {
	Command []string `toml:"command"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
	Desktop      bool   `toml:"desktop"`
}

// ScheduleConfig is one cron-scheduled resumable run
type ScheduleConfig struct {
	Name          string `toml:"name"`
	Cron          string `toml:"cron"`
	Repo          string `toml:"repo"`
	Issue         int    `toml:"issue"`
	MaxIterations int    `toml:"max_iterations"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DryRun: true,
		General: GeneralConfig{
			RepoRoot:      ".",
			StateFile:     ".agent_state.json",
			LedgerPath:    filepath.Join(home, ".issue-agent", "ledger.db"),
			MaxIterations: 10,
			TimeBudget:    "30m",
		},
		GitHub: GitHubConfig{
			Owner:      "davidgraymi",
			APIURL:     "https://api.github.com",
			WebURL:     "https://github.com",
			BaseBranch: "main",
			Remote:     "origin",
			AutoLabel:  true,
		},
		LLM: LLMConfig{
			Provider:      "ollama",
			Model:         "llama3:8b",
			MaxToolRounds: 8,
			Timeout:       "5m",
		},
		Tests: TestsConfig{
			Command: []string{"go", "test", "./..."},
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Environment overrides are not applied here; see ApplyEnv.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.RepoRoot = ExpandPath(cfg.General.RepoRoot)
	cfg.General.LedgerPath = ExpandPath(cfg.General.LedgerPath)
	cfg.General.PromptsDir = ExpandPath(cfg.General.PromptsDir)

	return cfg, nil
}

// LoadWithLocalFallback loads the explicit path if given, otherwise the nearest
// project-local config, otherwise the user config.
func LoadWithLocalFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// FindLocalConfig walks up from the working directory looking for LocalConfigName.
// Returns "" if none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overlays environment-derived settings. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := getenv("REPO_OWNER"); v != "" {
		c.GitHub.Owner = v
	}
	if v := getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getenv("DRY_RUN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DRY_RUN must be 0 or 1, got %q", v)
		}
		c.DryRun = n != 0
	}
	return nil
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	if c.General.MaxIterations <= 0 {
		return fmt.Errorf("general.max_iterations must be positive")
	}
	if _, err := c.Budget(); err != nil {
		return err
	}
	if _, err := c.LLMTimeout(); err != nil {
		return err
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("llm.provider must be ollama or openai, got %q", c.LLM.Provider)
	}
	if len(c.Tests.Command) == 0 {
		return fmt.Errorf("tests.command must not be empty")
	}
	for i, s := range c.Schedules {
		if s.Name == "" || s.Cron == "" || s.Repo == "" || s.Issue <= 0 {
			return fmt.Errorf("schedule %d: name, cron, repo and issue are required", i)
		}
	}
	return nil
}

// Budget returns the wall-clock budget of one iteration loop
func (c *Config) Budget() (time.Duration, error) {
	d, err := time.ParseDuration(c.General.TimeBudget)
	if err != nil {
		return 0, fmt.Errorf("general.time_budget: %w", err)
	}
	return d, nil
}

// LLMTimeout returns the per-request timeout for the reasoning provider
func (c *Config) LLMTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 0, fmt.Errorf("llm.timeout: %w", err)
	}
	return d, nil
}

// LLMBaseURL returns the configured base URL or the provider default
func (c *Config) LLMBaseURL() string {
	if c.LLM.BaseURL != "" {
		return strings.TrimRight(c.LLM.BaseURL, "/")
	}
	if c.LLM.Provider == "openai" {
		return "https://api.openai.com/v1"
	}
	return "http://localhost:11434/v1"
}

// StatePath returns the session file path, resolved against the repo root
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.General.StateFile) {
		return c.General.StateFile
	}
	return filepath.Join(c.General.RepoRoot, c.General.StateFile)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "issue-agent", "config.toml")
}

package config

// Config holds lectern configuration.
// Stored at: ~/.lectern/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Defra        DefraConfig               `mapstructure:"defra" yaml:"defra"`
	Library      LibraryCfg                `mapstructure:"library" yaml:"library"`
	Analysis     AnalysisCfg               `mapstructure:"analysis" yaml:"analysis"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openrouter", "openai"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per minute
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"` // Default LLM provider
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: lectern-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// LibraryCfg holds book storage settings.
type LibraryCfg struct {
	// MaxFetchBytes limits how much of a stored asset is read when
	// extracting text for analysis (default: 512 KiB).
	MaxFetchBytes int `mapstructure:"max_fetch_bytes" yaml:"max_fetch_bytes"`
}

// AnalysisCfg holds AI analysis settings.
type AnalysisCfg struct {
	// Model overrides the provider's default model for analysis calls.
	Model string `mapstructure:"model" yaml:"model"`
	// TimeoutSeconds bounds a single analysis generation (default: 120).
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// MaxExcerptChars caps the book excerpt included in the prompt (default: 6000).
	MaxExcerptChars int `mapstructure:"max_excerpt_chars" yaml:"max_excerpt_chars"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:    "openrouter",
				Model:   "anthropic/claude-sonnet-4",
				APIKey:  "${OPENROUTER_API_KEY}",
				Enabled: true,
			},
			"openai": {
				Type:    "openai",
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
				Enabled: false,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openrouter",
		},
		Defra: DefraConfig{
			ContainerName: "lectern-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
		Library: LibraryCfg{
			MaxFetchBytes: 512 * 1024,
		},
		Analysis: AnalysisCfg{
			TimeoutSeconds:  120,
			MaxExcerptChars: 6000,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

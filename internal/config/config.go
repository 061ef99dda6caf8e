package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`
	Server      struct {
		Address      string        `mapstructure:"address"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Flows      FlowsConfig      `mapstructure:"flows"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Validation ValidationConfig `mapstructure:"validation"`
	DB         struct {
		URL      string `mapstructure:"url"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"db"`
	Auth AuthConfig `mapstructure:"auth"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `mapstructure:"-"`
}

// FlowsConfig locates the flow definition document.
type FlowsConfig struct {
	File   string `mapstructure:"file"`
	Bucket string `mapstructure:"bucket"`
	Key    string `mapstructure:"key"`
	// ContextDir is the directory context files are resolved in. Paths
	// that are absolute or leave it are refused.
	ContextDir string `mapstructure:"context_dir"`
}

// AuthConfig configures OpenID Connect authentication for the REST API.
// Browser login is enabled when ClientSecret and RedirectURL are set.
type AuthConfig struct {
	Issuer       string `mapstructure:"issuer"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	DevBypass    bool   `mapstructure:"dev_bypass"`
}

// ProviderConfig holds the credential and endpoint for one provider family.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// LLMConfig configures completion backends.
type LLMConfig struct {
	DefaultModel string         `mapstructure:"default_model"`
	Timeout      time.Duration  `mapstructure:"timeout"`
	Gemini       ProviderConfig `mapstructure:"gemini"`
	Claude       ProviderConfig `mapstructure:"claude"`
	OpenAI       ProviderConfig `mapstructure:"openai"`
}

// ValidationConfig configures step output validation.
type ValidationConfig struct {
	// AllowExternalCommands is the security switch for external_command
	// rules. It is parsed leniently by LoadConfig, see parseSwitch.
	AllowExternalCommands bool `mapstructure:"-"`
}

// legacyEnv maps configuration keys onto the environment variable names
// used by existing deployments.
var legacyEnv = map[string]string{
	"llm.default_model":                   "LLM_PROVIDER",
	"llm.gemini.api_key":                  "GOOGLE_API_KEY",
	"llm.claude.api_key":                  "ANTHROPIC_API_KEY",
	"llm.openai.api_key":                  "OPENAI_API_KEY",
	"validation.allow_external_commands": "ALLOW_EXTERNAL_COMMANDS",
	"db.url":                              "DATABASE_URL",
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}
	return cfg
}

// LoadConfig loads the configuration from a file and the environment. An
// empty path searches for config.yaml in . and ./config; a missing file is
// not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.LLM.Timeout <= 0 {
		return errors.New("llm timeout must be positive")
	}
	if c.Flows.File == "" && c.Flows.Bucket == "" {
		return errors.New("either flows.file or flows.bucket must be set")
	}
	if c.Flows.Bucket != "" && c.Flows.Key == "" {
		return errors.New("flows.key is required with flows.bucket")
	}
	if c.TLS.Enable && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.New("tls enabled but cert/key file not provided")
	}
	return nil
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "DEV")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "DEV")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.hostnames", []string{"localhost"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("flows.file", "flow.yaml")
	v.SetDefault("flows.bucket", "")
	v.SetDefault("flows.key", "flow.yaml")
	v.SetDefault("flows.context_dir", ".")
	v.SetDefault("llm.default_model", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	for _, p := range []string{"gemini", "claude", "openai"} {
		v.SetDefault("llm."+p+".api_key", "")
		v.SetDefault("llm."+p+".base_url", "")
	}
	v.SetDefault("validation.allow_external_commands", "true")
	v.SetDefault("db.url", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "")
	v.SetDefault("auth.dev_bypass", false)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	config.Validation.AllowExternalCommands = parseSwitch(v.GetString("validation.allow_external_commands"))
	config.LLM.DefaultModel = strings.TrimSpace(config.LLM.DefaultModel)
	config.ConfigFile = v.ConfigFileUsed()
	return &config, nil
}

// parseSwitch reports whether a security switch is on. Only an explicit
// false-equivalent turns it off.
func parseSwitch(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "false", "0", "no", "off", "f", "n":
		return false
	default:
		return true
	}
}

package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
)

const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Config groups every setting of the service.
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Chat   ChatConfig
	Speech SpeechConfig
	Assets AssetsConfig
}

// environment is the flat variable surface read by go-env.
type environment struct {
	Port      string `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console"`

	ChatProvider string        `env:"CHAT_PROVIDER,default=gemini"`
	ChatTimeout  time.Duration `env:"CHAT_TIMEOUT,default=30s"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	GeminiURL    string `env:"GEMINI_BASE_URL"`

	ArkAPIKey      string   `env:"ARK_API_KEY"`
	ArkAccessKey   string   `env:"ARK_ACCESS_KEY"`
	ArkSecretKey   string   `env:"ARK_SECRET_KEY"`
	ArkModel       string   `env:"ARK_MODEL"`
	ArkBaseURL     string   `env:"ARK_BASE_URL,default=https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion      string   `env:"ARK_REGION,default=cn-beijing"`
	ArkTemperature *float64 `env:"ARK_TEMPERATURE"`

	SpeechLang           string        `env:"SPEECH_LANG,default=en-IN"`
	SpeechMaxAlternative int           `env:"SPEECH_MAX_ALTERNATIVES,default=5"`
	SpeechSilenceShort   time.Duration `env:"SPEECH_SILENCE_SHORT,default=2500ms"`
	SpeechSilenceLong    time.Duration `env:"SPEECH_SILENCE_LONG,default=3s"`
	SpeechRate           float64       `env:"SPEECH_RATE,default=1.0"`
	SpeechSkipDelay      time.Duration `env:"SPEECH_SKIP_DELAY,default=500ms"`

	StaticDir      string `env:"STATIC_DIR,default=./web"`
	AssetCacheName string `env:"ASSET_CACHE_NAME,default=luna-journal-cache-v1"`
	AssetPrecache  string `env:"ASSET_PRECACHE"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnviron()
}

// FromEnviron builds the configuration from the current process environment only.
func FromEnviron() (*Config, error) {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	server, err := serverConfig(e.Port)
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(strings.TrimSpace(e.ChatProvider))
	if provider != ProviderGemini && provider != ProviderArk {
		return nil, fmt.Errorf("invalid CHAT_PROVIDER value: %q", e.ChatProvider)
	}
	if e.ChatTimeout <= 0 {
		return nil, fmt.Errorf("invalid CHAT_TIMEOUT value: %s", e.ChatTimeout)
	}

	return &Config{
		Server: server,
		Log: LogConfig{
			Level:  e.LogLevel,
			Format: e.LogFormat,
		},
		Chat: ChatConfig{
			Provider: provider,
			Timeout:  e.ChatTimeout,
			Gemini: GeminiConfig{
				APIKey:  strings.TrimSpace(e.GeminiAPIKey),
				Model:   strings.TrimSpace(e.GeminiModel),
				BaseURL: strings.TrimSpace(e.GeminiURL),
			},
			Ark: ArkConfig{
				APIKey:      strings.TrimSpace(e.ArkAPIKey),
				AccessKey:   strings.TrimSpace(e.ArkAccessKey),
				SecretKey:   strings.TrimSpace(e.ArkSecretKey),
				Model:       strings.TrimSpace(e.ArkModel),
				BaseURL:     e.ArkBaseURL,
				Region:      e.ArkRegion,
				Temperature: e.ArkTemperature,
			},
		},
		Speech: SpeechConfig{
			Lang:            e.SpeechLang,
			MaxAlternatives: e.SpeechMaxAlternative,
			SilenceShort:    e.SpeechSilenceShort,
			SilenceLong:     e.SpeechSilenceLong,
			Rate:            speechmodel.ClampRate(e.SpeechRate),
			SkipDelay:       e.SpeechSkipDelay,
		},
		Assets: AssetsConfig{
			StaticDir: e.StaticDir,
			CacheName: e.AssetCacheName,
			Precache:  splitList(e.AssetPrecache),
		},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// serverConfig accepts "8080", ":8080" or "127.0.0.1:8080".
func serverConfig(port string) (ServerConfig, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig selects the zerolog level and writer.
type LogConfig struct {
	Level  string
	Format string
}

// ChatConfig selects and configures the remote model.
type ChatConfig struct {
	Provider string
	Timeout  time.Duration
	Gemini   GeminiConfig
	Ark      ArkConfig
}

// Enabled reports whether the selected provider has its credentials.
func (c ChatConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Ark.Enabled()
	default:
		return c.Gemini.Enabled()
	}
}

// MissingCredential names what the selected provider lacks.
func (c ChatConfig) MissingCredential() string {
	if c.Enabled() {
		return ""
	}
	if c.Provider == ProviderArk {
		return "ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and ARK_MODEL"
	}
	return "GEMINI_API_KEY"
}

// GeminiConfig configures the Gemini client. BaseURL is empty for the public endpoint.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled reports whether an API key is present.
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ArkConfig configures the Ark chat model.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
}

// Enabled reports whether a model and either an API key or an AK/SK pair are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: need ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		temperature = lo.ToPtr(float32(*c.Temperature))
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Temperature: temperature,
	})
}

// SpeechConfig carries the speech defaults handed to each session.
type SpeechConfig struct {
	Lang            string
	MaxAlternatives int
	SilenceShort    time.Duration
	SilenceLong     time.Duration
	Rate            float64
	SkipDelay       time.Duration
}

// Recognition returns the recognizer configuration for new capture sessions.
func (c SpeechConfig) Recognition() speechmodel.RecognitionConfig {
	cfg := speechmodel.DefaultRecognitionConfig()
	if c.Lang != "" {
		cfg.Lang = c.Lang
	}
	if c.MaxAlternatives > 0 {
		cfg.MaxAlternatives = c.MaxAlternatives
	}
	if c.SilenceShort > 0 {
		cfg.ShortSilence = c.SilenceShort
	}
	if c.SilenceLong > 0 {
		cfg.LongSilence = c.SilenceLong
	}
	return cfg
}

// Synthesis returns the output defaults for new output sessions.
func (c SpeechConfig) Synthesis() speechmodel.SynthesisConfig {
	lang := c.Lang
	if lang == "" {
		lang = speechmodel.DefaultRecognitionConfig().Lang
	}
	rate := c.Rate
	if rate == 0 {
		rate = speechmodel.DefaultRate
	}
	return speechmodel.SynthesisConfig{Lang: lang, Rate: speechmodel.ClampRate(rate)}
}

// AssetsConfig drives static serving and the offline cache worker.
type AssetsConfig struct {
	StaticDir string
	CacheName string
	Precache  []string
}

func splitList(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Uniq(lo.Compact(parts))
}

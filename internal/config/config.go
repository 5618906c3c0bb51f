// Package config builds the process configuration from the environment and,
// for provider credentials, from SSM Parameter Store. It is read once at
// startup and never mutated afterwards.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gynecology-chatbot/internal/integrations/gemini"
	"gynecology-chatbot/internal/integrations/openai"
	"gynecology-chatbot/internal/integrations/paramstore"
)

const (
	ProviderChatGPT = "chatgpt"
	ProviderGemini  = "gemini"
	ProviderGrok    = "grok"

	GrokBaseURL = "https://api.x.ai/v1"
	GrokModel   = "grok-2-latest"

	defaultSessionsIndex    = "userId-updatedAt-index"
	defaultHistoryLimit     = 10
	defaultMaxMessageLength = 4000
	defaultProviderTimeout  = 8 * time.Second
	defaultDevServerAddr    = ":8080"
)

// DefaultProviderOrder is the priority order used when PROVIDER_ORDER is unset.
var DefaultProviderOrder = []string{ProviderChatGPT, ProviderGemini, ProviderGrok}

var providerDefaults = map[string]ProviderConfig{
	ProviderChatGPT: {BaseURL: openai.DefaultBaseURL, Model: openai.DefaultModel},
	ProviderGemini:  {BaseURL: gemini.DefaultBaseURL, Model: gemini.DefaultModel},
	ProviderGrok:    {BaseURL: GrokBaseURL, Model: GrokModel},
}

// ProviderConfig describes one AI backend. An empty APIKey means the provider
// is not configured.
type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

func (p ProviderConfig) Configured() bool { return p.APIKey != "" }

type Config struct {
	StateTable       string
	SessionsIndex    string
	ParamPrefix      string
	HistoryLimit     int
	MaxMessageLength int
	ProviderTimeout  time.Duration
	// Providers is in priority order.
	Providers []ProviderConfig

	DevServerAddr    string
	DynamoDBEndpoint string
}

// tokenPayload is the JSON shape stored in SSM for a provider token.
type tokenPayload struct {
	Token string `json:"token"`
}

// Load reads the environment and resolves provider credentials. params may be
// nil, in which case credentials come from the environment only.
func Load(ctx context.Context, params paramstore.Lookuper) (Config, error) {
	cfg := Config{
		StateTable:       strings.TrimSpace(os.Getenv("STATE_TABLE")),
		SessionsIndex:    envString("SESSIONS_INDEX", defaultSessionsIndex),
		ParamPrefix:      strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
		DevServerAddr:    envString("DEVSERVER_ADDR", defaultDevServerAddr),
		DynamoDBEndpoint: strings.TrimSpace(os.Getenv("DYNAMODB_ENDPOINT")),
	}
	if cfg.StateTable == "" {
		return Config{}, errors.New("config: STATE_TABLE is required")
	}

	var err error
	if cfg.HistoryLimit, err = envPositiveInt("HISTORY_LIMIT", defaultHistoryLimit); err != nil {
		return Config{}, err
	}
	if cfg.MaxMessageLength, err = envPositiveInt("MAX_MESSAGE_LENGTH", defaultMaxMessageLength); err != nil {
		return Config{}, err
	}
	timeoutMS, err := envPositiveInt("PROVIDER_TIMEOUT_MS", int(defaultProviderTimeout/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout = time.Duration(timeoutMS) * time.Millisecond

	order, err := ParseProviderOrder(os.Getenv("PROVIDER_ORDER"))
	if err != nil {
		return Config{}, err
	}
	for _, name := range order {
		p, err := loadProvider(ctx, params, cfg.ParamPrefix, name)
		if err != nil {
			return Config{}, err
		}
		cfg.Providers = append(cfg.Providers, p)
	}
	return cfg, nil
}

// ParseProviderOrder parses a comma-separated provider list. Blank input gives
// DefaultProviderOrder; unknown names are rejected and repeats dropped.
func ParseProviderOrder(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), DefaultProviderOrder...), nil
	}
	var order []string
	seen := make(map[string]bool)
	for _, field := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(field))
		if name == "" {
			continue
		}
		if _, ok := providerDefaults[name]; !ok {
			return nil, fmt.Errorf("config: unknown provider %q in PROVIDER_ORDER", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	if len(order) == 0 {
		return nil, errors.New("config: PROVIDER_ORDER names no providers")
	}
	return order, nil
}

// TokenParameterName is the SSM name holding a provider token.
func TokenParameterName(prefix, provider string) string {
	return prefix + "/providers/" + provider + "-token"
}

func loadProvider(ctx context.Context, params paramstore.Lookuper, prefix, name string) (ProviderConfig, error) {
	p := providerDefaults[name]
	p.Name = name
	env := strings.ToUpper(name)
	p.BaseURL = envString(env+"_BASE_URL", p.BaseURL)
	p.Model = envString(env+"_MODEL", p.Model)

	if key := strings.TrimSpace(os.Getenv(env + "_API_KEY")); key != "" {
		p.APIKey = key
		return p, nil
	}
	if params == nil || prefix == "" {
		return p, nil
	}

	paramName := TokenParameterName(prefix, name)
	raw, found, err := params.LookupParameter(ctx, paramName)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("config: load %s token: %w", name, err)
	}
	if !found {
		return p, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return ProviderConfig{}, fmt.Errorf("config: unmarshal %s token parameter as JSON: %w", name, err)
	}
	p.APIKey = strings.TrimSpace(tp.Token)
	return p, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envPositiveInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %d", key, n)
	}
	return n, nil
}

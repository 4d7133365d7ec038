package llm

import (
	"os"
	"sort"

	"github.com/normanking/alcance/internal/config"
	"github.com/normanking/alcance/internal/router"
)

// NewSetFromConfig builds one metrics-wrapped OpenAI-compatible provider per
// configured backend.
func NewSetFromConfig(cfg *config.Config) *Set {
	set := NewSet()

	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.LLM.Providers[name]
		apiKey := pc.APIKey
		if apiKey == "" {
			apiKey = getAPIKeyFromEnv(name)
		}
		p := NewOpenAIProvider(&ProviderConfig{
			Name:     name,
			Endpoint: pc.Endpoint,
			APIKey:   apiKey,
			Model:    pc.Model,
			Timeout:  pc.Timeout,
		})
		set.Register(router.Backend(name), NewMetricsProvider(p))
	}
	return set
}

// getAPIKeyFromEnv retrieves the API key from standard environment variables.
func getAPIKeyFromEnv(providerName string) string {
	envVars := map[string]string{
		"openai":   "OPENAI_API_KEY",
		"deepseek": "DEEPSEEK_API_KEY",
	}
	if envVar, ok := envVars[providerName]; ok {
		return os.Getenv(envVar)
	}
	return ""
}

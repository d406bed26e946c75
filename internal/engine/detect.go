package engine

import "fmt"

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend string // "ollama" or "openai"
	BaseURL string
	APIKey  string
}

// Detect returns the Engine for the configured backend. An empty backend
// selects Ollama.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "", "ollama":
		return NewOllamaEngine(cfg.BaseURL), nil
	case "openai":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai backend requires a base URL")
		}
		return NewOpenAIEngine(cfg.BaseURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}

package extraction

import "strings"

type TaskKind string

const (
	TaskExtract TaskKind = "extract"
	TaskIntent  TaskKind = "intent"
)

type ModelProfile struct {
	PrimaryModel    string
	FallbackModel   string
	Temperature     float64
	MaxOutputTokens int
}

type ModelRouterConfig struct {
	ExtractPrimary  string
	ExtractFallback string

	IntentPrimary  string
	IntentFallback string
}

type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	if strings.TrimSpace(config.ExtractPrimary) == "" {
		config.ExtractPrimary = "gpt-4o-mini"
	}
	if strings.TrimSpace(config.ExtractFallback) == "" {
		config.ExtractFallback = "gpt-4.1-mini"
	}
	if strings.TrimSpace(config.IntentPrimary) == "" {
		config.IntentPrimary = "gpt-4o-mini"
	}
	if strings.TrimSpace(config.IntentFallback) == "" {
		config.IntentFallback = "gpt-4.1-nano"
	}

	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(task TaskKind) ModelProfile {
	switch task {
	case TaskIntent:
		return ModelProfile{
			PrimaryModel:    r.config.IntentPrimary,
			FallbackModel:   r.config.IntentFallback,
			Temperature:     0.1,
			MaxOutputTokens: 60,
		}
	default:
		return ModelProfile{
			PrimaryModel:    r.config.ExtractPrimary,
			FallbackModel:   r.config.ExtractFallback,
			Temperature:     0.2,
			MaxOutputTokens: 900,
		}
	}
}

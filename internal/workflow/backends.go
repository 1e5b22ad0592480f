package workflow

import (
	"fmt"

	"quizqa/internal/backend"
	"quizqa/internal/backoff"
	"quizqa/internal/config"
	"quizqa/internal/dispatch"
	"quizqa/internal/ratelimit"
	"quizqa/internal/services"
	"quizqa/internal/services/anthropic"
	"quizqa/internal/services/llm"
)

const clientTitle = "quizqa"

// Factory builds the client for one configured backend.
type Factory func(name string, cfg config.Backend) (backend.Backend, error)

// DefaultFactory maps backend kinds onto the bundled clients.
func DefaultFactory(name string, cfg config.Backend) (backend.Backend, error) {
	switch cfg.Kind {
	case config.KindOpenAI:
		return llm.NewClient(llm.Config{
			Name:      name,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Title:     clientTitle,
			Timeout:   cfg.Timeout(),
			MaxTokens: cfg.MaxTokens,
		}), nil
	case config.KindAnthropic:
		return anthropic.NewClient(anthropic.Config{
			Name:      name,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout(),
			MaxTokens: cfg.MaxTokens,
		}), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "build backend",
			fmt.Sprintf("backend %q has unsupported kind %q", name, cfg.Kind), nil)
	}
}

// GovernorConfig converts a backend's throughput settings.
func GovernorConfig(cfg config.Backend) ratelimit.Config {
	return ratelimit.Config{
		RatePerMinute:    cfg.RatePerMinute,
		MinRatePerMinute: cfg.MinRatePerMinute,
		MaxRatePerMinute: cfg.MaxRatePerMinute,
		Burst:            cfg.Burst,
		IncreaseAfter:    cfg.IncreaseAfter,
		IncreaseFactor:   cfg.IncreaseFactor,
		DecreaseFactor:   cfg.DecreaseFactor,
	}
}

// RetryPolicy converts a backend's retry settings.
func RetryPolicy(cfg config.Backend) backoff.Policy {
	return backoff.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay(),
		MaxDelay:   cfg.MaxDelay(),
		Jitter:     cfg.Jitter(),
	}
}

// buildLanes creates a client, governor and retry controller for each named
// backend. Every run gets fresh governors.
func buildLanes(cfg *config.Config, names []string, factory Factory, observer ratelimit.Observer) (map[string]dispatch.Lane, map[string]backend.Backend, error) {
	lanes := make(map[string]dispatch.Lane, len(names))
	clients := make(map[string]backend.Backend, len(names))
	for _, name := range names {
		bcfg, ok := cfg.Backends[name]
		if !ok {
			return nil, nil, services.Wrap(services.ErrConfiguration, "workflow", "build backend",
				fmt.Sprintf("backend %q is not configured", name), nil)
		}
		client, err := factory(name, bcfg)
		if err != nil {
			return nil, nil, err
		}
		var govOpts []ratelimit.Option
		if observer != nil {
			govOpts = append(govOpts, ratelimit.WithObserver(observer))
		}
		lanes[name] = dispatch.Lane{
			Backend:     client,
			Governor:    ratelimit.New(name, GovernorConfig(bcfg), govOpts...),
			Retry:       backoff.New(RetryPolicy(bcfg)),
			Concurrency: bcfg.Concurrency,
		}
		clients[name] = client
	}
	return lanes, clients, nil
}

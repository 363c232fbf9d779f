package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/selmo/docstill/internal/analyze"
	"github.com/selmo/docstill/internal/arbiter"
	"github.com/selmo/docstill/internal/cache"
	"github.com/selmo/docstill/internal/chunker"
	"github.com/selmo/docstill/internal/config"
	"github.com/selmo/docstill/internal/integrate"
	"github.com/selmo/docstill/internal/ocr"
	"github.com/selmo/docstill/internal/pipeline"
)

// newLogger writes to stderr; stdout is reserved for command output.
func newLogger(lc config.LogConfig) (*slog.Logger, error) {
	lvl, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch lc.Format {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h), nil
}

func newCacheStore(cc config.CacheConfig) (cache.Store, error) {
	switch cc.Backend {
	case "memory":
		return cache.NewMemory(), nil
	case "fs":
		return cache.NewFS(cc.Dir)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cc.RedisAddr})
		return cache.NewRedis(client, cc.RedisTTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cc.Backend)
	}
}

func newOCRRunner(oc config.OCRConfig, logger *slog.Logger) *ocr.Runner {
	if !oc.Enabled {
		return nil
	}
	r := &ocr.Runner{
		Primary:  &ocr.Tesseract{Binary: oc.TesseractBinary},
		Renderer: &ocr.PopplerRenderer{DPI: oc.RenderDPI},
		Log:      logger,
	}
	if oc.RemoteURL != "" {
		r.Secondary = &ocr.Remote{
			BaseURL: oc.RemoteURL,
			APIKey:  oc.RemoteAPIKey,
			Model:   oc.RemoteModel,
		}
	}
	return r
}

func newArbiter(c *config.Config, logger *slog.Logger) *arbiter.Arbiter {
	return &arbiter.Arbiter{
		OCR: newOCRRunner(c.OCR, logger),
		OCROpts: ocr.Options{
			Languages:     c.OCR.Languages,
			MinConfidence: c.OCR.MinConfidence,
			Workers:       c.OCR.Workers,
		},
		PoolSize: c.Arbiter.PoolSize,
		Log:      logger,
	}
}

func chunkingConfig(c *config.Config) chunker.Config {
	return chunker.Config{
		TokenBudget: c.Chunking.TokenBudget,
		Est: chunker.Estimator{
			CJKCharsPerToken:   c.Chunking.CJKCharsPerToken,
			LatinCharsPerToken: c.Chunking.LatinCharsPerToken,
		},
	}
}

func newRunner(c *config.Config, store cache.Store, stats *analyze.CallStats, logger *slog.Logger) *pipeline.Runner {
	provider := analyze.NewOpenAIProvider(analyze.OpenAIConfig{
		APIKey:  c.Provider.APIKey,
		Model:   c.Provider.Model,
		BaseURL: c.Provider.BaseURL,
		Timeout: c.Provider.Timeout,
	})
	orch := analyze.NewOrchestrator(analyze.OrchestratorConfig{
		Provider:         provider,
		Workers:          c.Analysis.Workers,
		Attempts:         c.Analysis.Attempts,
		BaseDelay:        c.Analysis.BaseDelay,
		MaxDelay:         c.Analysis.MaxDelay,
		CallTimeout:      c.Provider.Timeout,
		MaxTokens:        c.Provider.MaxTokens,
		RelaxedMaxTokens: c.Provider.RelaxedMaxTokens,
		Temperature:      c.Provider.Temperature,
		Cache:            store,
		Stats:            stats,
		Log:              logger,
	})
	return &pipeline.Runner{
		Arbiter:      newArbiter(c, logger),
		Orchestrator: orch,
		Integrator:   &integrate.Integrator{},
		Chunking:     chunkingConfig(c),
		Cache:        store,
		Log:          logger,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

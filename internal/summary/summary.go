// Package summary produces digests and action items over batches of
// normalized messages.
package summary

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/nhle/contextcatcher/internal/model"
)

// emptyDigest is returned for a batch with no messages.
const emptyDigest = "No messages to summarize."

// Summarizer turns a batch of messages, newest first, into a Summary.
type Summarizer interface {
	GenerateSummary(ctx context.Context, msgs []model.NormalizedMessage) (model.Summary, error)
}

// New picks the summarizer for cfg. The LLM backend is used only when it
// is enabled and an API key is configured; it is always wrapped so that a
// failure falls back to the heuristic digest.
func New(cfg model.LLMConfig, logger *log.Logger, opts ...LLMOption) Summarizer {
	if logger == nil {
		logger = log.Default()
	}

	heuristic := NewHeuristic()
	if !cfg.Enabled || cfg.APIKey == "" {
		return heuristic
	}

	return &Fallback{
		primary:  NewLLM(cfg, opts...),
		fallback: heuristic,
		logger:   logger,
	}
}

// Fallback tries a primary summarizer and falls back on any error. The
// primary's error is logged and never returned.
type Fallback struct {
	primary  Summarizer
	fallback Summarizer
	logger   *log.Logger
}

// GenerateSummary implements Summarizer.
func (f *Fallback) GenerateSummary(
	ctx context.Context,
	msgs []model.NormalizedMessage,
) (model.Summary, error) {
	s, err := f.primary.GenerateSummary(ctx, msgs)
	if err == nil {
		return s, nil
	}

	f.logger.Error("llm summarization failed", "err", err)
	f.logger.Info("falling back to heuristic summarizer")
	return f.fallback.GenerateSummary(ctx, msgs)
}

func emptySummary() model.Summary {
	return model.Summary{
		Digest:      emptyDigest,
		ActionItems: []model.ActionItem{},
	}
}

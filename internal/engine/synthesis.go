package engine

import (
	"context"
	"strings"
	"time"

	"github.com/parleyhq/parley/backend"
	"github.com/parleyhq/parley/internal/core"
)

const (
	summaryMarker     = "SUMMARY:"
	actionItemsMarker = "ACTION ITEMS:"
)

// synthesize asks the designated backend to distill the transcript into
// a consensus. Retries once like a regular turn; its token usage is
// recorded against the synthesizing backend.
func (o *Orchestrator) synthesize(ctx context.Context) (*core.Consensus, error) {
	id := o.opts.SynthesisBackend
	if id == "" {
		id = o.session.Participants[0].BackendID
	}
	b, err := o.manager.registry.Resolve(id)
	if err != nil {
		return nil, err
	}

	snapshot := o.Session()
	input := []backend.Message{{
		Role:    backend.RoleUser,
		Content: o.manager.prompts.SynthesisPrompt(o.session.Question, snapshot),
	}}
	opts := backend.Options{
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
	}

	res, err := b.Generate(ctx, input, opts)
	if err != nil {
		if ctx.Err() != nil || backend.IsKind(err, backend.KindCancelled) {
			return nil, err
		}
		o.manager.logger.Warn("retrying synthesis",
			"session", o.session.ID, "backend", id, "error", err)
		if delay := o.opts.retryDelay(); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, backend.WrapErr(id, ctx.Err())
			}
		}
		res, err = b.Generate(ctx, input, opts)
		if err != nil {
			return nil, err
		}
	}

	o.costs.Record(id, res.Usage.InputTokens, res.Usage.OutputTokens)
	return parseConsensus(res.Content), nil
}

// parseConsensus extracts the SUMMARY and ACTION ITEMS sections from a
// synthesis response. A response that ignores the format becomes a
// consensus whose summary is the whole text.
func parseConsensus(text string) *core.Consensus {
	text = strings.TrimSpace(text)
	c := &core.Consensus{}

	var summary []string
	var section string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		switch {
		case strings.HasPrefix(upper, summaryMarker):
			section = "summary"
			if rest := strings.TrimSpace(trimmed[len(summaryMarker):]); rest != "" {
				summary = append(summary, rest)
			}
		case strings.HasPrefix(upper, actionItemsMarker):
			section = "actions"
		case section == "summary" && trimmed != "":
			summary = append(summary, trimmed)
		case section == "actions" && trimmed != "":
			item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*• \t"))
			if item != "" {
				c.ActionItems = append(c.ActionItems, item)
			}
		}
	}

	c.Summary = strings.TrimSpace(strings.Join(summary, "\n"))
	if c.Summary == "" {
		c.Summary = text
	}
	return c
}

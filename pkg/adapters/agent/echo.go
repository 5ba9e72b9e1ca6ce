package agent

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// Echo answers every prompt with the prompt itself. Useful for dry runs.
type Echo struct{}

func (Echo) ExecutePrompt(ctx context.Context, systemPrompt, prompt string, ec domain.ExecutionContext) (*domain.AgentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta := map[string]any{"state": string(ec.State)}
	if systemPrompt != "" {
		meta["system"] = systemPrompt
	}
	return &domain.AgentResponse{Content: prompt, Metadata: meta, ResponseType: domain.ResponseSuccess}, nil
}

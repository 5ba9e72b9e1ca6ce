package runtime

import (
	"context"
	"errors"

	"github.com/aretw0/weft/pkg/domain"
)

func (e *Executor) prompt(ctx context.Context, run *domain.Run, state domain.StateID, action *domain.PromptAction) domain.ActionResult {
	if e.agent == nil {
		return domain.Failed(nil, domain.NewActionError(domain.ActionErrExecution, nil, "no agent executor configured"))
	}

	params, err := renderValues(action.Params, run.Context)
	if err != nil {
		return failure(err)
	}
	vars := domain.CopyMap(run.Context)
	for k, v := range params {
		vars[k] = v
	}

	tmpl := &domain.Prompt{Body: action.Inline}
	if action.Name != "" {
		if e.prompts == nil {
			return domain.Failed(nil, domain.NewActionError(domain.ActionErrNotFound, nil, "no prompt library configured for %q", action.Name))
		}
		tmpl, err = e.prompts.Prompt(ctx, action.Name)
		if errors.Is(err, domain.ErrPromptNotFound) {
			return domain.Failed(nil, domain.NewActionError(domain.ActionErrNotFound, err, "prompt %q not found", action.Name))
		}
		if err != nil {
			return failure(err)
		}
	}

	system, err := render(tmpl.System, vars)
	if err != nil {
		return failure(err)
	}
	body, err := render(tmpl.Body, vars)
	if err != nil {
		return failure(err)
	}

	resp, err := e.agent.ExecutePrompt(ctx, system, body, domain.ExecutionContext{
		RunID:    run.ID,
		Workflow: run.Workflow,
		State:    state,
		Vars:     vars,
	})
	if err != nil {
		return failure(err)
	}
	if resp == nil {
		resp = &domain.AgentResponse{ResponseType: domain.ResponseError, Content: "empty agent response"}
	}

	value := resp.AsContextValue()
	storeResult(run, action.ResultVar, value)
	if resp.ResponseType == domain.ResponseError {
		return domain.Failed(value, domain.NewActionError(domain.ActionErrExecution, nil, "agent returned an error: %s", resp.Content))
	}
	return domain.Succeeded(value)
}

package runtime

import (
	"context"
	"errors"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
)

// subWorkflow runs a child workflow to completion inside the parent's action.
// The child is persisted like any run, with ParentID pointing back.
func (e *Executor) subWorkflow(ctx context.Context, run *domain.Run, action *domain.SubWorkflowAction) domain.ActionResult {
	if len(run.CallStack) >= e.maxDepth {
		return domain.Failed(nil, domain.NewActionError(domain.ActionErrRecursion, nil,
			"call depth %d reached starting %q (max %d)", len(run.CallStack), action.Workflow, e.maxDepth))
	}
	if e.resolver == nil {
		return domain.Failed(nil, domain.NewActionError(domain.ActionErrNotFound, nil, "no workflow resolver configured for %q", action.Workflow))
	}

	wf, err := e.resolver.Resolve(ctx, action.Workflow)
	if errors.Is(err, domain.ErrWorkflowNotFound) {
		return domain.Failed(nil, domain.NewActionError(domain.ActionErrNotFound, err, "workflow %q not found", action.Workflow))
	}
	if err != nil {
		return failure(err)
	}

	params, err := renderValues(action.Params, run.Context)
	if err != nil {
		return failure(err)
	}
	vars, err := schema.Resolve(wf.Definition().Parameters, params)
	if err != nil {
		return domain.Failed(nil, domain.NewActionError(domain.ActionErrExecution, err, "workflow %q: %v", action.Workflow, err))
	}

	child := domain.NewRun(e.newID(), wf.Definition(), vars)
	child.ParentID = run.ID
	child.CallStack = append(append([]domain.WorkflowName(nil), run.CallStack...), wf.Name())
	if err := e.runs.Save(context.WithoutCancel(ctx), child); err != nil {
		return failure(err)
	}
	e.logger.Debug("sub-workflow started", "run_id", run.ID, "child_id", child.ID, "workflow", child.Workflow, "depth", child.Depth())

	execErr := e.Execute(ctx, wf, child)

	output := map[string]any{
		"run_id":  child.ID,
		"status":  string(child.Status),
		"context": domain.CopyMap(child.Context),
	}
	storeResult(run, action.ResultVar, output)

	if child.Status == domain.RunCompleted {
		return domain.Succeeded(output)
	}
	msg := child.Error
	if msg == "" && execErr != nil {
		msg = execErr.Error()
	}
	if msg == "" {
		msg = string(child.Status)
	}
	return domain.Failed(output, domain.NewActionError(domain.ActionErrExecution, execErr, "sub-workflow %q (%s) ended %s: %s", child.Workflow, child.ID, child.Status, msg))
}

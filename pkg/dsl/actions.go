package dsl

import "github.com/aretw0/weft/pkg/domain"

func action(kind domain.ActionKind, fill func(*domain.ActionSpec)) *domain.ActionSpec {
	a := &domain.ActionSpec{Kind: kind, Idempotent: domain.DefaultIdempotent(kind)}
	fill(a)
	return a
}

// PromptAction builds a named prompt action.
func PromptAction(name string, params map[string]any) *domain.ActionSpec {
	return action(domain.ActionPrompt, func(a *domain.ActionSpec) {
		a.Prompt = &domain.PromptAction{Name: name, Params: params}
	})
}

// ShellAction builds a shell action.
func ShellAction(command string) *domain.ActionSpec {
	return action(domain.ActionShell, func(a *domain.ActionSpec) {
		a.Shell = &domain.ShellAction{Command: command}
	})
}

// SetAction builds a single-assignment set action.
func SetAction(key string, value any) *domain.ActionSpec {
	return action(domain.ActionSet, func(a *domain.ActionSpec) {
		a.Set = &domain.SetAction{Assignments: []domain.Assignment{{Key: key, Value: value}}}
	})
}

// LogAction builds a log action.
func LogAction(level, message string) *domain.ActionSpec {
	return action(domain.ActionLog, func(a *domain.ActionSpec) {
		a.Log = &domain.LogAction{Level: level, Message: message}
	})
}

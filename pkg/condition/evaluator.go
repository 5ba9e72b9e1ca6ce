// Package condition evaluates custom transition expressions with CEL.
package condition

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/ext"
)

// DefaultCacheSize is the number of compiled programs kept by default.
const DefaultCacheSize = 1024

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Words CEL reserves; context keys named like this cannot be declared.
var reserved = map[string]bool{
	"true": true, "false": true, "null": true, "in": true, "as": true, "break": true,
	"const": true, "continue": true, "else": true, "for": true, "function": true, "if": true,
	"import": true, "let": true, "loop": true, "package": true, "namespace": true,
	"return": true, "var": true, "void": true, "while": true,
}

// Evaluator implements ports.ConditionEvaluator on top of cel-go.
// Every identifier-shaped key of the variable map is declared as a dyn variable.
type Evaluator struct {
	programs *cache.Cache
	logger   *slog.Logger
}

// Option configures an Evaluator.
type Option func(*config)

type config struct {
	cacheSize int64
	logger    *slog.Logger
}

// WithCacheSize bounds the number of cached programs.
func WithCacheSize(n int64) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates an Evaluator.
func New(opts ...Option) (*Evaluator, error) {
	cfg := config{cacheSize: DefaultCacheSize, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	programs, err := cache.New(cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}
	return &Evaluator{programs: programs, logger: cfg.logger}, nil
}

// Evaluate returns the boolean value of expr over vars.
// Compile failures, wrong-shape access and non-bool results are errors.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, vars map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, fmt.Errorf("empty expression")
	}

	activation := make(map[string]any, len(vars))
	names := make([]string, 0, len(vars))
	for k, v := range vars {
		if !identifier.MatchString(k) || reserved[k] {
			continue
		}
		names = append(names, k)
		activation[k] = Normalize(v)
	}
	sort.Strings(names)

	prg, err := e.program(expr, names)
	if err != nil {
		return false, err
	}

	out, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", expr, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %s, expected bool", expr, out.Type().TypeName())
	}
	return bool(b), nil
}

func (e *Evaluator) program(expr string, names []string) (cel.Program, error) {
	key := cache.Key(append([]string{expr}, names...)...)
	if cached, ok := e.programs.Get(key); ok {
		return cached.(cel.Program), nil
	}

	envOpts := []cel.EnvOption{ext.Strings()}
	for _, n := range names {
		envOpts = append(envOpts, cel.Variable(n, cel.DynType))
	}
	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("building expression environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling %q: %w", expr, iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(types.BoolType) && !t.IsExactType(types.DynType) {
		return nil, fmt.Errorf("expression %q has type %s, expected bool", expr, t)
	}

	prg, err := env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("planning %q: %w", expr, err)
	}
	e.programs.Set(key, prg)
	e.logger.Debug("compiled expression", "expr", expr, "vars", len(names))
	return prg, nil
}

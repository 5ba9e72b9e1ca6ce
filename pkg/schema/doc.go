// Package schema types and coerces workflow parameters.
//
// It defines a small type system (string, int, float, bool, duration and
// slices of those) used to turn loosely typed inputs, such as CLI flag
// strings or JSON numbers, into the values a run context holds.
//
//	params := []domain.Parameter{
//	    {Name: "env", Type: "string", Required: true},
//	    {Name: "replicas", Type: "int", Default: 2},
//	    {Name: "tags", Type: "[string]"},
//	}
//
//	vars, err := schema.Resolve(params, map[string]any{
//	    "env":  "prod",
//	    "tags": "api,web",
//	})
//	// vars: env="prod" replicas=int64(2) tags=[]any{"api", "web"}
//
// Failures are reported together in an *AggregateError, which matches
// domain.ErrInvalidParameters.
package schema

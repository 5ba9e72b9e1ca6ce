// Package compiler turns diagram source into a domain.WorkflowDefinition.
//
// The accepted syntax is the Mermaid stateDiagram-v2 subset described in the
// project README: state declarations, start and end markers, and transitions
// whose labels carry a condition and an optional action.
package compiler

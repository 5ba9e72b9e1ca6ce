package loam

// WorkflowMetadata is the frontmatter of a workflows/<name>.md document.
// It uses "mapstructure" tags to match standard Frontmatter/YAML keys.
type WorkflowMetadata struct {
	Name        string              `json:"name" mapstructure:"name"`
	Description string              `json:"description" mapstructure:"description"`
	Parameters  []ParameterMetadata `json:"parameters" mapstructure:"parameters"`

	// General Metadata, flattened to dotted keys.
	Metadata map[string]any `json:"metadata" mapstructure:"metadata"`
}

// ParameterMetadata declares a workflow input. Type is either a type name
// ("int") or a single element list for slices ([string]).
type ParameterMetadata struct {
	Name        string `json:"name" mapstructure:"name"`
	Type        any    `json:"type" mapstructure:"type"`
	Description string `json:"description" mapstructure:"description"`
	Required    bool   `json:"required" mapstructure:"required"`
	Default     any    `json:"default" mapstructure:"default"`
}

// PromptMetadata is the frontmatter of a prompts/<name>.md document.
// The body is the prompt template.
type PromptMetadata struct {
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	System      string `json:"system" mapstructure:"system"`
}

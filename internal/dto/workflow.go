package dto

// WorkflowFile is the on-disk form of a workflow.
// Nodes are listed in creation order; references only point backwards.
type WorkflowFile struct {
	ID     string      `json:"id" yaml:"id" mapstructure:"id"`
	Nodes  []NodeSpec  `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Groups []GroupSpec `json:"groups,omitempty" yaml:"groups,omitempty" mapstructure:"groups"`
}

// NodeSpec describes one node. Name is a file-local alias used by
// references; the workflow id comes from meta.id or the workflow counter.
type NodeSpec struct {
	Name     string         `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Type     string         `json:"type" yaml:"type" mapstructure:"type"`
	Inputs   map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty" mapstructure:"inputs"`
	Meta     map[string]any `json:"meta,omitempty" yaml:"meta,omitempty" mapstructure:"meta"`
	Disabled bool           `json:"disabled,omitempty" yaml:"disabled,omitempty" mapstructure:"disabled"`
}

type GroupSpec struct {
	Title string   `json:"title" yaml:"title" mapstructure:"title"`
	Color string   `json:"color,omitempty" yaml:"color,omitempty" mapstructure:"color"`
	Nodes []string `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
}

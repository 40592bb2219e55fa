package mcp

// ProbeIdentitiesInput defines the input for the probe_identities tool.
type ProbeIdentitiesInput struct{}

// ProbeIdentitiesOutput defines the output for the probe_identities tool.
type ProbeIdentitiesOutput struct {
	Dir        string         `json:"dir" jsonschema:"Activations directory"`
	Identities []IdentityInfo `json:"identities" jsonschema:"Activation streams found in the directory"`
	Labels     int            `json:"labels" jsonschema:"Number of labels, one per activation row"`
	Rows       int            `json:"rows" jsonschema:"Total activation rows across all sequences"`
	MaxKey     int            `json:"max_key" jsonschema:"Largest corpus key with a recorded range"`
}

// IdentityInfo describes one activation stream.
type IdentityInfo struct {
	Name  string `json:"name"`
	Layer int    `json:"layer"`
	Path  string `json:"path"`
}

// ProbeIndexInput defines the input for the probe_index tool.
type ProbeIndexInput struct {
	Selector string `json:"selector" jsonschema:"Selector such as '8', '[0,4,6]/key', ':20/all' or '8@cx0'"`
	Identity string `json:"identity,omitempty" jsonschema:"Activation stream to read when the selector names none (e.g. 'hx1')"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum number of rows to return (default: 20)"`
}

// ProbeIndexOutput defines the output for the probe_index tool.
type ProbeIndexOutput struct {
	Identity  string      `json:"identity" jsonschema:"Activation stream that was read"`
	Selector  string      `json:"selector" jsonschema:"Normalised selector"`
	Rows      int         `json:"rows" jsonschema:"Number of rows selected"`
	Cols      int         `json:"cols" jsonschema:"Activation width"`
	Values    [][]float64 `json:"values" jsonschema:"Leading rows of the selection"`
	Truncated bool        `json:"truncated" jsonschema:"Whether rows were omitted because of the limit"`
}

// ProbeSplitInput defines the input for the probe_split tool.
type ProbeSplitInput struct {
	Identity   string   `json:"identity" jsonschema:"Activation stream to split (e.g. 'hx1')"`
	SubsetSize int      `json:"subset_size,omitempty" jsonschema:"Number of rows to sample; 0 or -1 uses every row"`
	Ratio      *float64 `json:"ratio,omitempty" jsonschema:"Training fraction in [0, 1] (default: configured ratio)"`
	Seed       *uint64  `json:"seed,omitempty" jsonschema:"Seed for a reproducible split"`
	OutputDir  string   `json:"output_dir,omitempty" jsonschema:"Directory below the configured split output directory"`
}

// ProbeSplitOutput defines the output for the probe_split tool.
type ProbeSplitOutput struct {
	ID        string `json:"id" jsonschema:"Split id"`
	Identity  string `json:"identity" jsonschema:"Activation stream that was split"`
	Dir       string `json:"dir" jsonschema:"Directory holding the exported split"`
	TrainRows int    `json:"train_rows" jsonschema:"Rows in the training set"`
	TestRows  int    `json:"test_rows" jsonschema:"Rows in the test set"`
	Width     int    `json:"width" jsonschema:"Activation width"`
	Message   string `json:"message" jsonschema:"Human-readable result message"`
}

package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
)

// Graph is a ComfyUI API-format workflow: node id to node description. Node
// contents are kept as raw maps so unknown keys survive the round trip to
// the backend untouched.
type Graph map[string]map[string]any

// Load reads a workflow template from a JSON file.
func Load(path string) (Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read template: %w", err)
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("workflow: parse template: %w", err)
	}
	if len(g) == 0 {
		return nil, errors.New("workflow: template has no nodes")
	}
	return g, nil
}

// NodeBinding names the graph node and input field that receives one logical
// job input. A zero binding means the workflow does not use that input.
type NodeBinding struct {
	Node  string
	Field string
}

// Bound reports whether the binding points at a node.
func (b NodeBinding) Bound() bool {
	return b.Node != ""
}

// Bindings maps each logical job input onto a workflow node. Bindings are
// configuration: they change per workflow template, not per job.
type Bindings struct {
	ImageInput     NodeBinding
	PositivePrompt NodeBinding
	NegativePrompt NodeBinding
	Seed           NodeBinding
	OutputPrefix   NodeBinding
}

// Validate checks every bound node against the graph so a renamed or removed
// node fails at startup instead of silently at request time.
func (b Bindings) Validate(g Graph) error {
	var missing []string
	for name, binding := range b.named() {
		if binding.Bound() {
			if _, ok := g[binding.Node]; !ok {
				missing = append(missing, fmt.Sprintf("%s -> node %q", name, binding.Node))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("workflow: bindings reference missing nodes: %v", missing)
	}
	return nil
}

func (b Bindings) named() map[string]NodeBinding {
	return map[string]NodeBinding{
		"image input":     b.ImageInput,
		"positive prompt": b.PositivePrompt,
		"negative prompt": b.NegativePrompt,
		"seed":            b.Seed,
		"output prefix":   b.OutputPrefix,
	}
}

// Params carries the per-job values injected into the template.
type Params struct {
	JobID          string
	ImagePath      string
	Prompt         string
	NegativePrompt *string
	Seed           *int64
}

// Request is a concrete, submittable parameterization of a workflow graph.
type Request struct {
	Graph Graph
	// Seed is the value injected into the sampler, whether supplied or drawn.
	Seed int64
	// Skipped lists logical inputs that had a value but no bound node.
	Skipped []string
}

// Build produces a concrete request graph from a template. The template is
// never mutated; the result is a deep copy. Inputs without a bound node are
// recorded in Skipped rather than failing, since a workflow may simply not
// use that feature. When no seed is supplied one is drawn uniformly from
// [1, 2^63-1], the full positive range the sampler accepts.
func Build(template Graph, b Bindings, p Params) (Request, error) {
	g, err := deepCopy(template)
	if err != nil {
		return Request{}, err
	}

	req := Request{Graph: g}

	if err := inject(g, b.ImageInput, "image input", p.ImagePath, &req.Skipped); err != nil {
		return Request{}, err
	}
	if p.Prompt != "" {
		if err := inject(g, b.PositivePrompt, "positive prompt", p.Prompt, &req.Skipped); err != nil {
			return Request{}, err
		}
	}
	if p.NegativePrompt != nil {
		if err := inject(g, b.NegativePrompt, "negative prompt", *p.NegativePrompt, &req.Skipped); err != nil {
			return Request{}, err
		}
	}

	seed := int64(0)
	if p.Seed != nil {
		seed = *p.Seed
	} else {
		seed = rand.Int63n(math.MaxInt64-1) + 1
	}
	req.Seed = seed
	if err := inject(g, b.Seed, "seed", seed, &req.Skipped); err != nil {
		return Request{}, err
	}

	// The prefix embeds the job id so an independent scan of the output
	// directory can associate the artifact with the job.
	if err := inject(g, b.OutputPrefix, "output prefix", OutputPrefix(p.JobID), &req.Skipped); err != nil {
		return Request{}, err
	}

	return req, nil
}

// OutputPrefix is the filename prefix injected into the save node for a job.
func OutputPrefix(jobID string) string {
	return "td_output/" + jobID
}

func inject(g Graph, b NodeBinding, name string, value any, skipped *[]string) error {
	if !b.Bound() {
		*skipped = append(*skipped, name)
		return nil
	}
	node, ok := g[b.Node]
	if !ok {
		return fmt.Errorf("workflow: %s bound to missing node %q", name, b.Node)
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return fmt.Errorf("workflow: node %q has no inputs object", b.Node)
	}
	inputs[b.Field] = value
	return nil
}

func deepCopy(g Graph) (Graph, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("workflow: copy template: %w", err)
	}
	var out Graph
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("workflow: copy template: %w", err)
	}
	return out, nil
}

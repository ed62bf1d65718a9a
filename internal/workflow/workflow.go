package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dreamreel/dreamreel/internal/config"
	"github.com/dreamreel/dreamreel/internal/mod"
	"github.com/dreamreel/dreamreel/internal/modules/animate"
	"github.com/dreamreel/dreamreel/internal/modules/assemble"
	"github.com/dreamreel/dreamreel/internal/modules/images"
	"github.com/dreamreel/dreamreel/internal/modules/music"
	"github.com/dreamreel/dreamreel/internal/modules/narrate"
	"github.com/dreamreel/dreamreel/internal/modules/publish"
	"github.com/dreamreel/dreamreel/internal/modules/script"
	"github.com/dreamreel/dreamreel/internal/utils"
)

// LoadFromFile loads a workflow from a YAML file
func LoadFromFile(inputConfig *config.InputConfig) (*Workflow, error) {
	data, err := os.ReadFile(inputConfig.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow Workflow
	if err := yaml.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}

	workflow.inputConfig = inputConfig
	workflow.registry = mod.NewModuleRegistry()
	workflow.checkpoints = make(map[string]*WorkflowCheckpoint)

	if err := registerModules(workflow.registry); err != nil {
		return nil, fmt.Errorf("failed to register modules: %w", err)
	}

	// A topic file given on the command line overrides the workflow's topic.
	if inputConfig.TopicPath != "" {
		data, err := os.ReadFile(inputConfig.TopicPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read topic file: %w", err)
		}
		workflow.Topic = strings.TrimSpace(string(data))
	}

	if inputConfig.OutputPath != "" {
		workflow.Output = inputConfig.OutputPath
	}

	return &workflow, nil
}

// registerModules registers all available modules with the registry
func registerModules(registry *mod.ModuleRegistry) error {
	all := []mod.Module{
		script.New(),
		images.New(),
		animate.New(),
		narrate.New(),
		music.New(),
		assemble.New(),
		publish.New(),
	}
	for _, m := range all {
		if err := registry.Register(m); err != nil {
			return fmt.Errorf("failed to register %s module: %w", m.Name(), err)
		}
	}
	return nil
}

// Validate checks every step against its module before anything runs.
func (w *Workflow) Validate() error {
	if w.Output == "" {
		return fmt.Errorf("workflow output directory is required")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow has no steps")
	}

	for i, step := range w.Steps {
		module, err := w.registry.Get(step.Module)
		if err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
		params := w.resolveParams(step, i)
		if err := module.Validate(params); err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
	}
	return nil
}

// ExecuteWithState runs the workflow through the graph-based execution engine
func (w *Workflow) ExecuteWithState() (*WorkflowState, error) {
	state := &WorkflowState{
		ID:           uuid.New().String(),
		Name:         w.Name,
		StartTime:    time.Now(),
		Status:       WorkflowStatusRunning,
		GlobalInputs: make(map[string]string),
		History:      make([]WorkflowEvent, 0),
	}

	graph := NewWorkflowGraph()
	state.Graph = graph

	nodeMap := make(map[string]*WorkflowNode)
	for _, step := range w.Steps {
		node := graph.AddNode(step)
		nodeMap[step.Name] = node
	}

	if err := w.buildDependencyEdges(graph, nodeMap); err != nil {
		return state, err
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return state, fmt.Errorf("failed to determine execution order: %w", err)
	}

	// Outputs of completed steps, in execution order, for input resolution.
	var completed []*WorkflowNode

	for i, nodeID := range order {
		node := graph.Nodes[nodeID]

		state.CurrentNode = nodeID
		node.Status = NodeStatusRunning
		state.AddEvent(WorkflowEvent{
			ID:        uuid.New().String(),
			Timestamp: time.Now(),
			NodeID:    nodeID,
			Type:      "started",
			Message:   fmt.Sprintf("Started executing %s", node.Step.Name),
		})

		if outputs, done := w.resume[node.Step.Name]; done {
			node.Status = NodeStatusSkipped
			node.Outputs = outputs
			completed = append(completed, node)
			state.AddEvent(WorkflowEvent{
				ID:        uuid.New().String(),
				Timestamp: time.Now(),
				NodeID:    nodeID,
				Type:      "skipped",
				Message:   fmt.Sprintf("Skipped %s, already completed in a previous run", node.Step.Name),
			})
			continue
		}

		module, err := w.registry.Get(node.Step.Module)
		if err != nil {
			node.Status = NodeStatusFailed
			state.Status = WorkflowStatusFailed
			w.SaveCheckpoint(nodeID, state)
			return state, fmt.Errorf("failed to get module %s: %w", node.Step.Module, err)
		}

		params := w.resolveParams(node.Step, i)
		w.fillMissingInputs(module, params, completed)

		result, err := module.Execute(context.Background(), params)
		if err != nil {
			node.Status = NodeStatusFailed
			state.Status = WorkflowStatusFailed
			w.SaveCheckpoint(nodeID, state)
			state.AddEvent(WorkflowEvent{
				ID:        uuid.New().String(),
				Timestamp: time.Now(),
				NodeID:    nodeID,
				Type:      "failed",
				Message:   fmt.Sprintf("Failed executing %s: %v", node.Step.Name, err),
				Data:      map[string]interface{}{"error": err.Error()},
			})
			return state, fmt.Errorf("failed to execute module %s: %w", node.Step.Module, err)
		}

		node.Status = NodeStatusComplete
		node.Outputs = result.Outputs
		node.Metadata = result.Metadata
		completed = append(completed, node)
		w.ClearCheckpoint(nodeID)

		state.AddEvent(WorkflowEvent{
			ID:        uuid.New().String(),
			Timestamp: time.Now(),
			NodeID:    nodeID,
			Type:      "completed",
			Message:   fmt.Sprintf("Completed executing %s", node.Step.Name),
			Data:      result.Statistics,
		})
	}

	state.Status = WorkflowStatusComplete
	state.EndTime = time.Now()

	return state, nil
}

// resolveParams expands ${output} in step parameters and injects the
// workflow-level output directory and topic.
func (w *Workflow) resolveParams(step Step, stepIndex int) map[string]interface{} {
	params := make(map[string]interface{})
	for k, v := range step.Parameters {
		if strVal, ok := v.(string); ok {
			params[k] = strings.ReplaceAll(strVal, "${output}", w.Output)
			continue
		}
		params[k] = v
	}

	params["output"] = w.Output

	// The topic seeds the first step only; later steps consume files.
	if stepIndex == 0 && w.Topic != "" {
		if _, has := params["topic"]; !has {
			params["topic"] = w.Topic
		}
	}

	return params
}

// fillMissingInputs resolves required inputs the YAML left unset by looking
// at outputs of completed steps, newest first. An output matches by name
// first, then by file pattern.
func (w *Workflow) fillMissingInputs(module mod.Module, params map[string]interface{}, completed []*WorkflowNode) {
	io := module.GetIO()
	for _, input := range io.RequiredInputs {
		if _, has := params[input.Name]; has {
			continue
		}

		if path, ok := findOutput(input, completed); ok {
			utils.LogVerbose("Resolved %s from previous step output: %s", input.Name, path)
			params[input.Name] = path
		}
	}
}

func findOutput(input mod.ModuleInput, completed []*WorkflowNode) (string, bool) {
	// Pass 1: an output with the same name as the input.
	for i := len(completed) - 1; i >= 0; i-- {
		if path, ok := completed[i].Outputs[input.Name]; ok {
			return path, true
		}
	}

	// Pass 2: any output whose path matches one of the input patterns.
	for i := len(completed) - 1; i >= 0; i-- {
		for _, path := range completed[i].Outputs {
			for _, pattern := range input.Patterns {
				if strings.HasSuffix(path, pattern) {
					return path, true
				}
			}
		}
	}
	return "", false
}

// buildDependencyEdges adds edges enforcing the YAML's sequential order.
func (w *Workflow) buildDependencyEdges(graph *WorkflowGraph, nodeMap map[string]*WorkflowNode) error {
	for i := 1; i < len(w.Steps); i++ {
		prevStep := w.Steps[i-1]
		currStep := w.Steps[i]
		if err := graph.AddEdge(nodeMap[prevStep.Name].ID, nodeMap[currStep.Name].ID); err != nil {
			return fmt.Errorf("failed to add sequential edge: %w", err)
		}
	}
	return nil
}

// SaveWorkflowState saves the workflow state summary to a YAML file
func (w *Workflow) SaveWorkflowState(state *WorkflowState, outputPath string) error {
	summary := map[string]interface{}{
		"id":          state.ID,
		"name":        state.Name,
		"status":      state.Status,
		"startTime":   state.StartTime,
		"endTime":     state.EndTime,
		"currentNode": state.CurrentNode,
		"nodes":       make(map[string]interface{}),
	}

	for id, node := range state.Graph.Nodes {
		summary["nodes"].(map[string]interface{})[id] = map[string]interface{}{
			"name":     node.Step.Name,
			"module":   node.Step.Module,
			"status":   node.Status,
			"outputs":  node.Outputs,
			"metadata": node.Metadata,
		}
	}

	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow state: %w", err)
	}

	return nil
}

// savedNode is the per-node shape of a persisted state file.
type savedNode struct {
	Name    string            `yaml:"name"`
	Module  string            `yaml:"module"`
	Status  NodeStatus        `yaml:"status"`
	Outputs map[string]string `yaml:"outputs"`
}

// LoadWorkflowState reads a previously saved workflow state file
func LoadWorkflowState(path string) (map[string]savedNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow state: %w", err)
	}

	var saved struct {
		Nodes map[string]savedNode `yaml:"nodes"`
	}
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse workflow state: %w", err)
	}

	return saved.Nodes, nil
}

// ExecuteRetry resumes a failed run, skipping steps the saved state file
// records as complete.
func (w *Workflow) ExecuteRetry() error {
	statePath := filepath.Join(w.Output, w.inputConfig.WorkflowName+".state.yaml")
	nodes, err := LoadWorkflowState(statePath)
	if err != nil {
		return err
	}

	w.resume = make(map[string]map[string]string)
	for _, node := range nodes {
		if node.Status == NodeStatusComplete || node.Status == NodeStatusSkipped {
			w.resume[node.Name] = node.Outputs
		}
	}
	utils.LogInfo("Resuming workflow, %d of %d steps already complete", len(w.resume), len(w.Steps))

	return w.Execute()
}

// Execute runs the workflow and persists the final state
func (w *Workflow) Execute() error {
	state, err := w.ExecuteWithState()

	// The state file is written on failure too, for post-mortems.
	sanitizedName := strings.ReplaceAll(w.Name, " ", "_")
	statePath := filepath.Join(w.Output, sanitizedName+".state.yaml")
	if state.Graph != nil {
		if saveErr := w.SaveWorkflowState(state, statePath); saveErr != nil {
			utils.LogWarning("Failed to save workflow state: %v", saveErr)
		}
	}

	return err
}

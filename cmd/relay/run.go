package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/builtin"
	"github.com/relayworks/relay/yaml"
)

var (
	runInput    string
	runDryRun   bool
	runTimeout  time.Duration
	runMaxSteps int
)

var runCmd = &cobra.Command{
	Use:   "run <file.yaml>",
	Short: "Execute a workflow graph from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGraph(args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "Initial data as JSON, or @file to read it from a file")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate the graph without executing")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Overall wall-clock budget for the run (0 = none)")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", relay.DefaultMaxSteps, "Maximum nodes a run may visit (0 = unbounded)")
	rootCmd.AddCommand(runCmd)
}

func runGraph(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if verbose {
		log.Printf("Loading graph from: %s", absPath)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 - User-provided graph file
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	parser := yaml.NewParser()
	def, err := parser.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("parse graph: %w", err)
	}

	if verbose {
		log.Printf("Loaded graph: %s", def.Name)
		if def.Description != "" {
			log.Printf("Description: %s", def.Description)
		}
		log.Printf("Nodes: %d", len(def.Nodes))
		log.Printf("Edges: %d", len(def.Edges))
	}

	loader := yaml.NewLoader()
	builtin.RegisterAll(loader, verbose)

	g, err := loader.LoadDefinition(def)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	if runDryRun {
		fmt.Println("Graph validation successful (dry run)")
		return nil
	}

	initial, err := parseInput(runInput)
	if err != nil {
		return err
	}

	opts := []relay.Option{relay.WithMaxSteps(runMaxSteps)}
	if runTimeout > 0 {
		opts = append(opts, relay.WithTimeout(runTimeout))
	}
	if verbose {
		opts = append(opts, relay.WithLogger(relay.NewStdLogger(log.Default())))
	}

	result := relay.New(opts...).Run(context.Background(), g, initial)
	if err := printResult(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("execution failed: %w", result.Err())
	}
	return nil
}

// parseInput decodes the --input flag: inline JSON, or @path to read a
// JSON file.
func parseInput(input string) (map[string]any, error) {
	if input == "" {
		return nil, nil
	}
	raw := []byte(input)
	if strings.HasPrefix(input, "@") {
		data, err := os.ReadFile(input[1:]) // #nosec G304 - User-provided input file
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		raw = data
	}

	var initial map[string]any
	if err := json.Unmarshal(raw, &initial); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return initial, nil
}

func printResult(result *relay.Result) error {
	type view struct {
		ExecutionID   string            `json:"execution_id" yaml:"execution_id"`
		Graph         string            `json:"graph" yaml:"graph"`
		Success       bool              `json:"success" yaml:"success"`
		Duration      string            `json:"duration" yaml:"duration"`
		NodesExecuted []string          `json:"nodes_executed" yaml:"nodes_executed"`
		Errors        []relay.NodeError `json:"errors,omitempty" yaml:"errors,omitempty"`
		FinalData     map[string]any    `json:"final_data" yaml:"final_data"`
	}
	v := view{
		ExecutionID:   result.ExecutionID,
		Graph:         result.Graph,
		Success:       result.Success,
		Duration:      result.Duration.String(),
		NodesExecuted: result.NodesExecuted,
		Errors:        result.Errors,
		FinalData:     result.FinalState.Data(),
	}

	switch output {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := goyaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	default:
		status := "ok"
		if !result.Success {
			status = "failed"
		}
		fmt.Printf("Execution %s (%s) %s in %v\n", result.ExecutionID, result.Graph, status, result.Duration)
		fmt.Printf("Path: %s\n", strings.Join(result.NodesExecuted, " -> "))
		for _, e := range result.Errors {
			fmt.Printf("Error [%s] at %s: %s\n", e.Kind, e.Node, e.Message)
		}
		data, err := json.MarshalIndent(result.FinalState.Data(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("Final data:\n%s\n", data)
	}
	return nil
}

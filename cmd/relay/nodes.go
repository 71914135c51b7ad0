package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/relayworks/relay/builtin"
	"github.com/relayworks/relay/yaml"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List available node types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNodesList()
	},
}

var nodesInfoCmd = &cobra.Command{
	Use:   "info <type>",
	Short: "Show detailed info about a node type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNodesInfo(args[0])
	},
}

func init() {
	nodesCmd.AddCommand(nodesInfoCmd)
	rootCmd.AddCommand(nodesCmd)
}

func builtinRegistry() *builtin.Registry {
	return builtin.RegisterAll(yaml.NewLoader(), false)
}

func runNodesList() error {
	registry := builtinRegistry()

	metas := make([]builtin.NodeMetadata, 0)
	for _, builder := range registry.All() {
		metas = append(metas, builder.Metadata())
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Category != metas[j].Category {
			return metas[i].Category < metas[j].Category
		}
		return metas[i].Type < metas[j].Type
	})

	switch output {
	case "json":
		data, err := json.MarshalIndent(metas, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := goyaml.Marshal(metas)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	default:
		fmt.Printf("%-12s %-10s %s\n", "TYPE", "CATEGORY", "DESCRIPTION")
		fmt.Println(strings.Repeat("-", 60))
		for _, meta := range metas {
			fmt.Printf("%-12s %-10s %s\n", meta.Type, meta.Category, meta.Description)
		}
	}
	return nil
}

func runNodesInfo(nodeType string) error {
	registry := builtinRegistry()
	builder, ok := registry.Get(nodeType)
	if !ok {
		return fmt.Errorf("unknown node type: %s (try 'relay nodes')", nodeType)
	}
	meta := builder.Metadata()

	fmt.Printf("Node Type: %s\n", meta.Type)
	fmt.Printf("Category: %s\n", meta.Category)
	fmt.Printf("Description: %s\n", meta.Description)
	if meta.Since != "" {
		fmt.Printf("Since: %s\n", meta.Since)
	}
	fmt.Println()

	if len(meta.ConfigSchema) > 0 {
		fmt.Println("Configuration:")
		schemaJSON, _ := json.MarshalIndent(meta.ConfigSchema, "  ", "  ")
		fmt.Printf("  %s\n", schemaJSON)
		fmt.Println()
	}

	for _, example := range meta.Examples {
		fmt.Printf("Example: %s\n", example.Name)
		if example.Description != "" {
			fmt.Printf("  %s\n", example.Description)
		}
		configYAML, _ := goyaml.Marshal(example.Config)
		for _, line := range strings.Split(strings.TrimRight(string(configYAML), "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
	return nil
}

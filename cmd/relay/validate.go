package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relayworks/relay/builtin"
	"github.com/relayworks/relay/yaml"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.yaml>",
	Short: "Validate a graph definition without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := yaml.NewLoader()
		builtin.RegisterAll(loader, false)

		g, err := loader.LoadFile(args[0])
		if err != nil {
			return fmt.Errorf("invalid graph: %w", err)
		}

		fmt.Printf("Graph %q is valid: %d nodes, %d edges, entry %q\n",
			g.Name(), len(g.NodeIDs()), len(g.Edges()), g.Entry())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tiasync/cli/internal/composition"
)

var devicesFlat bool

// devicesCmd prints the composition tree of the open project.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show the device tree of the project",
	Long: `The devices command walks every device of the project and prints PLC programs with
their block, type and tag table folders, unified HMI devices with their connection
partners, classic HMI targets and other devices.

With --paths it prints one logical path per line instead, suitable for "tiasync export".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openProject(cmd.Context())
		if err != nil {
			return err
		}
		defer closeService(svc)

		nodes, err := svc.Devices()
		if err != nil {
			return err
		}
		if devicesFlat {
			composition.Walk(nodes, func(n *composition.Node) bool {
				fmt.Println(n.Path)
				return true
			})
			return nil
		}

		root := pterm.TreeNode{Text: pterm.Bold.Sprint(svc.ProjectName())}
		for _, n := range nodes {
			root.Children = append(root.Children, treeNode(n))
		}
		return pterm.DefaultTree.WithRoot(root).Render()
	},
}

func treeNode(n *composition.Node) pterm.TreeNode {
	tn := pterm.TreeNode{Text: nodeLabel(n)}
	for _, c := range n.Children {
		tn.Children = append(tn.Children, treeNode(c))
	}
	return tn
}

func nodeLabel(n *composition.Node) string {
	kind := pterm.Gray(string(n.Kind))
	switch {
	case n.Kind.IsBlock():
		return fmt.Sprintf("%s %s", n.Name, pterm.Gray(fmt.Sprintf("%s %d", n.Kind, n.Number)))
	case n.Kind == composition.KindHmiUnifiedDevice && len(n.Connections) > 0:
		return fmt.Sprintf("%s %s %s", pterm.Cyan(n.Name), kind, pterm.Gray("→ "+strings.Join(n.Connections, ", ")))
	case len(n.Children) > 0:
		return fmt.Sprintf("%s %s", pterm.Cyan(n.Name), kind)
	}
	return fmt.Sprintf("%s %s", n.Name, kind)
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().BoolVar(&devicesFlat, "paths", false, "print logical paths instead of a tree")
}

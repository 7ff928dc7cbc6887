package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/nodespace/internal/config"
	"github.com/kittclouds/nodespace/internal/markdown"
	"github.com/kittclouds/nodespace/internal/node"
)

var importContainerID string

var importCmd = &cobra.Command{
	Use:   "import <file.md>",
	Short: "Ingest a markdown file into the store, exercising create_nodes_from_markdown without going through MCP",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importContainerID, "container", "", "existing node id to attach the imported document under")
}

func runImport(cmd *cobra.Command, args []string) error {
	log := zap.NewNop()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("import: read %s: %w", args[0], err)
	}

	create := func(ctx context.Context, id, nodeType, content, containerID string, properties map[string]any) error {
		_, err := a.svc.CreateNode(ctx, &node.Node{
			ID: id, NodeType: nodeType, Content: content,
			ContainerNodeID: containerID, Properties: properties,
		})
		return err
	}
	move := func(ctx context.Context, id, newParent string) error {
		_, err := a.svc.MoveNode(ctx, id, newParent, node.Position{Kind: node.PositionLast})
		return err
	}

	ids, err := markdown.Ingest(ctx, markdown.Parse(src), importContainerID, create, move)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}

	fmt.Printf("imported %d nodes from %s\n", len(ids), args[0])
	return nil
}

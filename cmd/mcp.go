package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code browse findings, pull statistics, and record
review verdicts natively. Configure in Claude Code with:

  {
    "mcpServers": {
      "reviewhelper": { "command": "reviewhelper", "args": ["mcp"] }
    }
  }

Available tools: rh_list_issues, rh_get_issue, rh_get_statistics,
rh_review_issue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(s)
	return srv.ServeStdio(ctx)
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/amux-dev/amux/internal/proto"
)

func newWorktreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "worktree",
		Aliases: []string{"wt"},
		Short:   "Manage branch worktrees under a registered repository",
	}
	cmd.AddCommand(newWorktreeAddCmd(), newWorktreeRmCmd(), newWorktreeLsCmd())
	return cmd
}

func newWorktreeAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <repo-id> <branch>",
		Short: "Create a branch worktree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(proto.ReqCreateWorktree, "", map[string]string{"RepoID": args[0], "Branch": args[1]})
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
}

func newWorktreeRmCmd() *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "rm <repo-id> <branch>",
		Short: "Remove a branch worktree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			payload := map[string]any{"RepoID": args[0], "Branch": args[1], "CascadeSessions": cascade}
			resp, err := c.Call(proto.ReqRemoveWorktree, "", payload)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "destroy any live session attached to this worktree first")
	return cmd
}

func newWorktreeLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <repo-id>",
		Short: "List worktrees under a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(proto.ReqListWorktrees, "", map[string]string{"RepoID": args[0]})
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
}

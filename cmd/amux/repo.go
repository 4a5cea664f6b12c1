package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amux-dev/amux/internal/proto"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage registered repositories",
	}
	cmd.AddCommand(newRepoAddCmd(), newRepoRmCmd(), newRepoLsCmd())
	return cmd
}

func newRepoAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <path>",
		Short: "Register a repository root, deriving its ID from the path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			payload := map[string]string{"Name": args[0], "Path": args[1]}
			resp, err := c.Call(proto.ReqAddRepo, "", payload)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
}

func newRepoRmCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a registered repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			payload := map[string]any{"ID": args[0], "Force": force}
			resp, err := c.Call(proto.ReqRemoveRepo, "", payload)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "remove even if worktrees are still registered")
	return cmd
}

func newRepoLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List registered repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(proto.ReqListRepos, "", nil)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

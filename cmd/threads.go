package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/checkpoint"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect stored onboarding threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the ids of every stored thread",
	Run: func(_ *cobra.Command, _ []string) {
		withApp(func(ctx context.Context, a *application) error {
			lister, ok := a.checkpoints.(checkpoint.Lister)
			if !ok {
				return errors.New("the configured checkpoint store cannot list threads")
			}
			ids, err := lister.Threads(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print what a thread has learned and its conversation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *application) error {
			state, err := a.orchestrator.State(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("raw"); asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}

			fmt.Println(state.Knowledge.String())
			if d := state.LastRouteDecision; d != nil {
				fmt.Printf("\nlast route: %s (%s)\n", d.Decision, d.Reasoning)
			}
			fmt.Println()
			for _, m := range state.Messages {
				if m.Role == ai.RoleTool {
					continue
				}
				fmt.Printf("%s: %s\n", m.Role, m.Content)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(threadsCmd)
	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd)

	threadsShowCmd.Flags().Bool("raw", false, "print the stored state as JSON, tool messages included")
}

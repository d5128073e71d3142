package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"board-sync/api"
	"board-sync/client"
)

var rootCmd = &cobra.Command{
	Use:   "boardctl",
	Short: "Inspect and edit a board-sync board",
	Long: `boardctl talks to a running board-sync server.
Columns are todo, inProgress and done. Edits made while the server is
offline only change its local copy.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOARD_SYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "board-sync server URL")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

func registerCommands() {
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(mvCmd())
	rootCmd.AddCommand(watchCmd())
}

func newClient() *client.Client {
	return client.New(viper.GetString("url"), nil)
}

// withView runs a single request and prints the view it returns.
func withView(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) (api.View, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()
	v, err := fn(ctx, newClient())
	if err != nil {
		return err
	}
	return printView(cmd.OutOrStdout(), v, viper.GetBool("json"))
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd, func(ctx context.Context, c *client.Client) (api.View, error) {
				return c.Board(ctx)
			})
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <content...>",
		Short: "Add a task to the todo column",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			return withView(cmd, func(ctx context.Context, c *client.Client) (api.View, error) {
				return c.AddTask(ctx, content)
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <column> <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd, func(ctx context.Context, c *client.Client) (api.View, error) {
				return c.DeleteTask(ctx, args[0], args[1])
			})
		},
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <task-id> <from> <to>",
		Short: "Move a task to the end of another column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd, func(ctx context.Context, c *client.Client) (api.View, error) {
				return c.MoveTask(ctx, args[0], args[1], args[2])
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the board every time it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			return newClient().Watch(ctx, func(v api.View) error {
				if !viper.GetBool("json") {
					fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
				}
				return printView(out, v, viper.GetBool("json"))
			})
		},
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lectern-dev/lectern/internal/defra"
	"github.com/lectern-dev/lectern/internal/home"
)

var defraCmd = &cobra.Command{
	Use:   "defra",
	Short: "Manage the DefraDB container",
	Long: `Manage the DefraDB container lifecycle.

DefraDB is the source of truth for the book catalog, analyses, and call
history. The database runs in a Docker container with data persisted to
~/.lectern/defradb/.

Examples:
  lectern defra start   # Start the DefraDB container
  lectern defra stop    # Stop the container (data preserved)
  lectern defra status  # Check container status
  lectern defra logs    # View container logs`,
}

// withManager builds the standard Docker manager over ~/.lectern and
// hands it to fn, closing it afterwards. All defra subcommands run
// through here.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, mgr *defra.DockerManager) error) error {
	h, err := home.New(homeDir)
	if err != nil {
		return err
	}
	if err := h.EnsureExists(); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	dataPath := h.DefraDataPath()
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	mgr, err := defra.NewDockerManager(defra.DockerConfig{DataPath: dataPath})
	if err != nil {
		return err
	}
	defer mgr.Close()

	return fn(cmd.Context(), mgr)
}

var defraStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DefraDB container",
	Long: `Start the DefraDB container.

Creates the container if it doesn't exist, restarts it if stopped, and
is a no-op when already running. Data is persisted to ~/.lectern/defradb/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			fmt.Println("Starting DefraDB...")
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("failed to start DefraDB: %w", err)
			}
			fmt.Printf("DefraDB is running at %s\n", mgr.URL())
			return nil
		})
	},
}

var defraStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the DefraDB container",
	Long: `Stop the DefraDB container.

Data is preserved; use 'lectern defra start' to restart it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			fmt.Println("Stopping DefraDB...")
			if err := mgr.Stop(ctx); err != nil {
				return fmt.Errorf("failed to stop DefraDB: %w", err)
			}
			fmt.Println("DefraDB stopped")
			return nil
		})
	},
}

var defraStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show DefraDB container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			status, err := mgr.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			switch status {
			case defra.StatusRunning:
				fmt.Printf("Status: %s\n", status)
				fmt.Printf("URL: %s\n", mgr.URL())
				if err := defra.NewClient(mgr.URL()).HealthCheck(ctx); err != nil {
					fmt.Printf("Health: unhealthy (%v)\n", err)
				} else {
					fmt.Println("Health: healthy")
				}
			case defra.StatusStopped:
				fmt.Printf("Status: %s (use 'lectern defra start' to start)\n", status)
			case defra.StatusNotFound:
				fmt.Printf("Status: %s (use 'lectern defra start' to create)\n", status)
			default:
				fmt.Printf("Status: %s\n", status)
			}
			return nil
		})
	},
}

var defraLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show DefraDB container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetString("tail")
		return withManager(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			logs, err := mgr.Logs(ctx, tail)
			if err != nil {
				return fmt.Errorf("failed to get logs: %w", err)
			}
			fmt.Print(logs)
			return nil
		})
	},
}

var defraRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the DefraDB container",
	Long: `Remove the DefraDB container.

Stops and removes the container. Data in ~/.lectern/defradb/ is NOT
deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			fmt.Println("Removing DefraDB container...")
			if err := mgr.Remove(ctx); err != nil {
				return fmt.Errorf("failed to remove container: %w", err)
			}
			fmt.Println("DefraDB container removed (data preserved)")
			return nil
		})
	},
}

var defraWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for DefraDB to be ready",
	Long: `Wait for DefraDB to be ready to accept connections.

Useful in scripts to ensure DefraDB is fully started before running
other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return withManager(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			fmt.Printf("Waiting for DefraDB (timeout: %s)...\n", timeout)
			if err := mgr.WaitReady(ctx, timeout); err != nil {
				return fmt.Errorf("DefraDB not ready: %w", err)
			}
			fmt.Println("DefraDB is ready")
			return nil
		})
	},
}

func init() {
	defraLogsCmd.Flags().String("tail", "100", "Number of lines to show from the end")
	defraWaitCmd.Flags().Duration("timeout", 30*time.Second, "Timeout waiting for DefraDB")

	defraCmd.AddCommand(
		defraStartCmd,
		defraStopCmd,
		defraStatusCmd,
		defraLogsCmd,
		defraRemoveCmd,
		defraWaitCmd,
	)
	rootCmd.AddCommand(defraCmd)
}

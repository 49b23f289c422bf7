package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coopsys/sessionkit/client"
	"github.com/coopsys/sessionkit/config"
	"github.com/coopsys/sessionkit/monitor"
)

var configPath string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the session lifecycle agent",
	Long: `
Usage: sessionkit agent --config=/etc/sessionkit/config.hcl

  Runs the composed session manager against the configured API. SIGUSR1
  simulates the app being backgrounded and SIGUSR2 a resume, which is
  useful when exercising the background timeout from a shell.
`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/sessionkit.hcl)")
	deviceCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/sessionkit.hcl)")
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required. Use -c or --config flag")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	return config.LoadConfig(configPath)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := client.New(client.Options{
		Config:    cfg,
		Navigator: consoleNavigator{},
		Notifier:  consoleNotifier{},
	})
	if err != nil {
		return fmt.Errorf("failed to build client: %w", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	deviceID, _ := c.GetOrCreateDeviceID(ctx)
	fmt.Printf("agent running, device %s\n", deviceID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	lifecycle := make(chan os.Signal, 1)
	signal.Notify(lifecycle, syscall.SIGUSR1, syscall.SIGUSR2)

	for {
		select {
		case sig := <-lifecycle:
			if sig == syscall.SIGUSR1 {
				c.HandleAppState(ctx, monitor.AppStatePaused)
				fmt.Println("app backgrounded")
			} else {
				c.HandleAppState(ctx, monitor.AppStateResumed)
				fmt.Println("app resumed")
			}
		case <-quit:
			fmt.Println("shutting down")
			return nil
		}
	}
}

// consoleNavigator stands in for the UI's routing facility.
type consoleNavigator struct{}

func (consoleNavigator) ReplaceAll(route string) {
	fmt.Printf("navigation stack replaced with %s\n", route)
}

// consoleNotifier stands in for the UI's message surface.
type consoleNotifier struct{}

func (consoleNotifier) Notify(message string) {
	fmt.Println(message)
}

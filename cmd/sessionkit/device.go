package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coopsys/sessionkit/client"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Print the resolved device identity",
	RunE:  runDevice,
}

func runDevice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := client.New(client.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("failed to build client: %w", err)
	}
	defer c.Close()

	ctx := context.Background()
	id, err := c.GetOrCreateDeviceID(ctx)
	if err != nil {
		return err
	}
	name, err := c.GetDeviceName(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("id:   %s\nname: %s\n", id, name)
	return nil
}

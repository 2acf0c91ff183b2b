package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the attached capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		attached, err := newLink().ListAttached(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		if len(attached) == 0 {
			fmt.Println("No devices attached.")
			return nil
		}
		for _, dev := range attached {
			fmt.Printf("%s\t%s\n", dev.Serial, dev.Display)
		}
		return nil
	},
}

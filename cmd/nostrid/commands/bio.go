package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func bioCmd() *cobra.Command {
	bio := &cobra.Command{
		Use:   "bio",
		Short: "Inspect biometric protection",
	}
	bio.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the biometric gate is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mode:      %s\n", wire.Config.Biometry.Mode)
			fmt.Fprintf(out, "Available: %s\n", biometryLabel(cmd))
			fmt.Fprintf(out, "Fallback:  %t\n", wire.Config.Biometry.AllowPasswordFallback)
			return nil
		},
	})
	return bio
}

func biometryLabel(cmd *cobra.Command) string {
	if wire.Vault.IsBiometrySupported(cmd.Context()) {
		return "available"
	}
	return "unavailable"
}

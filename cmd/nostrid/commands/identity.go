package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/nostr-identity/internal/session"
)

func createCmd() *cobra.Command {
	var username string
	var showSecret bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new Nostr identity protected by biometry and a password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" {
				return userError("missing required flag: --user")
			}
			password, err := promptNewPassword(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			sess, err := wire.Sessions.CreateAccount(cmd.Context(), username, password)
			if err != nil {
				return explain(err)
			}
			if err := printSession(cmd.OutOrStdout(), sess); err != nil {
				return err
			}
			if showSecret {
				nsec, err := sess.ExportNsec()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Secret key (back it up now): %s\n", nsec)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username bound to the password")
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "print the new secret key as nsec for backup")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import an existing Nostr secret key (hex or nsec)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return userError("import requires an interactive terminal")
			}
			secret, err := promptSecret(cmd.ErrOrStderr(), "Secret key (hex or nsec): ")
			if err != nil {
				return fmt.Errorf("read secret key: %w", err)
			}
			defer zeroBytes(secret)

			password, err := promptNewPassword(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			sess, err := wire.Sessions.ImportAccount(cmd.Context(), string(secret), password)
			if err != nil {
				return explain(err)
			}
			return printSession(cmd.OutOrStdout(), sess)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether this device holds an identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			publicKey, ok, err := wire.Sessions.ResumeIfPossible(cmd.Context())
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(out, "Data dir:   %s (%s)\n", wire.Config.DataDir, wire.Config.Storage.Backend)
			fmt.Fprintf(out, "Biometry:   %s\n", biometryLabel(cmd))
			if !ok {
				fmt.Fprintln(out, "Identity:   none")
				return nil
			}
			fmt.Fprintf(out, "Public key: %s\n", publicKey)
			return nil
		},
	}
}

func unlockCmd() *cobra.Command {
	var useBiometry bool
	var message string

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the stored identity and optionally sign a message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sess *session.Session
				err  error
			)
			if useBiometry {
				sess, err = wire.Sessions.UnlockWithBiometry(cmd.Context())
			} else {
				pw, perr := promptSecret(cmd.ErrOrStderr(), "Password: ")
				if perr != nil {
					return fmt.Errorf("read password: %w", perr)
				}
				sess, err = wire.Sessions.Unlock(cmd.Context(), string(pw))
				zeroBytes(pw)
			}
			if err != nil {
				return explain(err)
			}
			if err := printSession(cmd.OutOrStdout(), sess); err != nil {
				return err
			}
			if message == "" {
				return nil
			}
			return signMessage(cmd.OutOrStdout(), sess, message)
		},
	}
	cmd.Flags().BoolVar(&useBiometry, "biometry", false, "unlock with the biometric-sealed credential")
	cmd.Flags().StringVar(&message, "sign", "", "sign the SHA-256 digest of this message")
	return cmd
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Destroy the stored identity and its sealed credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return userError("reset destroys the encrypted secret key; re-run with --yes to confirm")
			}
			if err := wire.Sessions.Reset(cmd.Context()); err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Identity removed.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func printSession(w io.Writer, sess *session.Session) error {
	npub, err := sess.Npub()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Public key: %s\n", sess.PublicKey)
	fmt.Fprintf(w, "npub:       %s\n", npub)
	fmt.Fprintf(w, "Unlocked:   %s\n", sess.Mode)
	if sess.Warning != "" {
		fmt.Fprintf(w, "Warning:    %s\n", sess.Warning)
	}
	return nil
}

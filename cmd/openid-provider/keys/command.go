// Package keys holds the commands to manage the signing key material.
package keys

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/openid-provider/internal/keys"
)

const keyFileMode = 0o600

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the signing key",
	}

	cmd.AddCommand(generateCmd(), thumbprintCmd())

	return cmd
}

func generateCmd() *cobra.Command {
	var (
		out  string
		bits int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new RSA signing key",
		Long:  "Generates a PKCS#1 PEM encoded RSA key and prints its key identifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, err := keys.Generate(bits)
			if err != nil {
				return err
			}

			pair, err := keys.NewSigningKeyPair(priv)
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, keys.EncodePEM(priv), keyFileMode); err != nil {
				return fmt.Errorf("writing key file: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), pair.KeyID())

			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "priv.pem", "path of the key file to write")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA modulus size")

	return cmd
}

func thumbprintCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "thumbprint",
		Short: "Print the key identifier of a signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pair, err := keys.LoadSigningKey(path)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), pair.KeyID())

			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "key", "k", "/keys/priv.pem", "path of the PEM encoded private key")

	return cmd
}

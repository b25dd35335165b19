package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	internalrsa "github.com/jetstack/securechannel/internal/envelope/rsa"
)

var keygenOutput string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generates an RSA key pair for the server",
	Long: `Generates a 2048-bit RSA key pair. The PKCS#8 private key is written to
--output (or stdout) and can be passed to "securechannel serve --private-key-file".
The public key is printed to stdout in the single-line SPKI PEM form the
server publishes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return keygen(cmd.OutOrStdout(), keygenOutput)
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.PersistentFlags().StringVarP(
		&keygenOutput,
		"output",
		"o",
		"",
		"File to write the private key to. The file must not exist.",
	)
}

func keygen(out io.Writer, path string) error {
	keyPair, err := internalrsa.GenerateKeyPair()
	if err != nil {
		return err
	}

	privatePEM, err := internalrsa.ExportPrivateKeyPEM(keyPair.PrivateKey)
	if err != nil {
		return err
	}

	publicPEM, err := internalrsa.ExportPublicKeyPEM(keyPair.PublicKey)
	if err != nil {
		return err
	}

	if path == "" {
		if _, err := out.Write(privatePEM); err != nil {
			return err
		}
	} else {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create private key file: %w", err)
		}
		if _, err := f.Write(privatePEM); err != nil {
			f.Close()
			return fmt.Errorf("failed to write private key file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write private key file: %w", err)
		}
	}

	_, err = fmt.Fprintln(out, publicPEM)
	return err
}

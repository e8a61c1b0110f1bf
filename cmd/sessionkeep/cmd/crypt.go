package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionkeep/secret"
)

func newEncryptCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Encrypt a secret with the configured key",
		Long:  `Encrypt a secret. The plaintext is read from standard input when no argument is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := cipherFromConfig(cmd, opts)
			if err != nil {
				return err
			}
			plaintext, err := inputValue(cmd, args)
			if err != nil {
				return err
			}
			enc, err := cipher.Encrypt(plaintext)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
}

func newDecryptCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [ciphertext]",
		Short: "Decrypt a secret with the configured key",
		Long:  `Decrypt a secret. The ciphertext is read from standard input when no argument is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := cipherFromConfig(cmd, opts)
			if err != nil {
				return err
			}
			ciphertext, err := inputValue(cmd, args)
			if err != nil {
				return err
			}
			plain, err := cipher.Decrypt(strings.TrimSpace(ciphertext))
			if errors.Is(err, secret.ErrKeyMismatch) {
				return fmt.Errorf("%w (key source: %s)", err, cipher.KeySource())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain)
			return nil
		},
	}
}

func cipherFromConfig(cmd *cobra.Command, opts *globalOptions) (*secret.Cipher, error) {
	cfg, err := loadConfig(cmd, opts, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return secret.NewCipher(cfg.Secrets.EncryptionKey, cfg.Secrets.AppSecret,
		secret.WithLogger(newLogger(cfg, cmd.ErrOrStderr())))
}

// inputValue returns args[0], or the first line of stdin without its
// trailing newline.
func inputValue(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

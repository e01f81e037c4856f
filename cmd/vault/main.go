package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tdex-network/tdex-broker/pkg/vault"
)

const vaultKeyEnv = "BROKER_VAULT_KEY"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	app = &cobra.Command{
		Use:           "vault",
		Short:         "credential vault utility",
		Long:          "this tool generates the key of the broker credential vault and encrypts or decrypts values with it",
		Version:       formatVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "generate a new hex encoded vault key",
		Args:  cobra.NoArgs,
		RunE:  keygenAction,
	}
	encryptCmd = &cobra.Command{
		Use:   "encrypt <plaintext>",
		Short: "encrypt a value with the vault key",
		Args:  cobra.ExactArgs(1),
		RunE:  encryptAction,
	}
	decryptCmd = &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "decrypt a value previously encrypted with the vault key",
		Args:  cobra.ExactArgs(1),
		RunE:  decryptAction,
	}

	passphrase string
	salt       string
	hexKey     string
)

func init() {
	keygenCmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "derive the key from the given passphrase instead of generating a random one")
	keygenCmd.Flags().StringVarP(&salt, "salt", "s", "", "hex encoded salt of the derivation, a random one is used if not specified")
	app.PersistentFlags().StringVarP(&hexKey, "key", "k", "", fmt.Sprintf("hex encoded vault key, defaults to $%s", vaultKeyEnv))

	app.AddCommand(keygenCmd, encryptCmd, decryptCmd)
}

func main() {
	if err := app.Execute(); err != nil {
		log.Fatal(err)
	}
}

func keygenAction(cmd *cobra.Command, _ []string) error {
	if passphrase == "" {
		key := make([]byte, vault.KeySize)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
		return nil
	}

	var saltBytes []byte
	if salt != "" {
		var err error
		if saltBytes, err = hex.DecodeString(salt); err != nil {
			return fmt.Errorf("invalid salt: %w", err)
		}
	}
	key, usedSalt, err := vault.DeriveKey([]byte(passphrase), saltBytes)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "key: %s\n", hex.EncodeToString(key))
	fmt.Fprintf(cmd.OutOrStdout(), "salt: %s\n", hex.EncodeToString(usedSalt))
	return nil
}

func encryptAction(cmd *cobra.Command, args []string) error {
	v, err := getVault()
	if err != nil {
		return err
	}

	ciphertext, err := v.Encrypt(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ciphertext)
	return nil
}

func decryptAction(cmd *cobra.Command, args []string) error {
	v, err := getVault()
	if err != nil {
		return err
	}

	plaintext, err := v.Decrypt(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), plaintext)
	return nil
}

func getVault() (*vault.Vault, error) {
	key := hexKey
	if key == "" {
		key = os.Getenv(vaultKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing vault key, use --key or set $%s", vaultKeyEnv)
	}
	return vault.NewFromHex(key)
}

func formatVersion() string {
	return fmt.Sprintf(
		"Version: %s\nCommit: %s\nDate: %s",
		version, commit, date,
	)
}

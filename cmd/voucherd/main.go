package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voucherchain/cmd/internal/passphrase"
	"voucherchain/config"
	"voucherchain/core/genesis"
	"voucherchain/crypto"
	"voucherchain/indexer"
	"voucherchain/rpc"
)

const programName = "voucherd"

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Voucher chain node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./config.toml", "path to config file")

	rootCmd.AddCommand(initCommand())
	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(keygenCommand())
	rootCmd.AddCommand(tokenCommand())
	rootCmd.AddCommand(exportEventsCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file, node keystore and development genesis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configFile); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", configFile)
			}
			pass, err := passphrase.NewSource(config.PassphraseEnv).Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			cfg := config.Default()
			cfg.KeystorePath = filepath.Join(filepath.Dir(configFile), "node.keystore")
			cfg.GenesisFile = filepath.Join(filepath.Dir(configFile), "genesis.yaml")
			addr, err := crypto.SaveToKeystore(cfg.KeystorePath, key, pass)
			if err != nil {
				return fmt.Errorf("write keystore: %w", err)
			}
			secret, err := randomSecret()
			if err != nil {
				return err
			}
			cfg.Auth.HMACSecret = secret
			if err := config.Save(configFile, cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			spec := genesis.Sample(addr.String(), cfg.ChainID, time.Now())
			data, err := spec.Encode()
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfg.GenesisFile, data, 0o644); err != nil {
				return fmt.Errorf("write genesis: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin:   %s\nconfig:  %s\ngenesis: %s\n", addr.String(), configFile, cfg.GenesisFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node: block production, JSON-RPC and event indexing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runNode(cmd.Context(), cfg)
		},
	}
}

func keygenCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an account key in an encrypted keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%s already exists", out)
			}
			pass, err := passphrase.NewSource(config.PassphraseEnv).Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			addr, err := crypto.SaveToKeystore(out, key, pass)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "keystore file to create")
	return cmd
}

func tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JSON-RPC bearer token",
		Long:  "Issue a JSON-RPC bearer token. Without --subject the token acts for the node key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if subject == "" {
				pass, err := passphrase.NewSource(config.PassphraseEnv).Get()
				if err != nil {
					return err
				}
				key, err := crypto.LoadFromKeystore(cfg.KeystorePath, pass)
				if err != nil {
					return fmt.Errorf("load node key: %w", err)
				}
				subject = key.PubKey().Address().String()
			}
			token, err := rpc.IssueToken(authConfig(cfg), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "bech32 account the token acts for")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func exportEventsCommand() *cobra.Command {
	var (
		out        string
		eventType  string
		fromHeight uint64
		toHeight   uint64
	)
	cmd := &cobra.Command{
		Use:   "export-events",
		Short: "Export indexed events to a Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
			if err != nil {
				return err
			}
			idx, err := indexer.New(db, nil)
			if err != nil {
				return err
			}
			defer idx.Close()
			n, err := idx.ExportParquet(cmd.Context(), out, indexer.Filter{Type: eventType, FromHeight: fromHeight, ToHeight: toHeight})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "parquet file to write")
	cmd.Flags().StringVar(&eventType, "type", "", "only export events of this type")
	cmd.Flags().Uint64Var(&fromHeight, "from", 0, "first block height")
	cmd.Flags().Uint64Var(&toHeight, "to", 0, "last block height")
	return cmd
}

func authConfig(cfg *config.Config) rpc.AuthConfig {
	return rpc.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	}
}

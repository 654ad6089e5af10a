package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/m3rciful/tonbot/core/buildinfo"
	corecmd "github.com/m3rciful/tonbot/core/cmd"
	coreconfig "github.com/m3rciful/tonbot/core/config"
	"github.com/m3rciful/tonbot/core/netutil"
	"github.com/m3rciful/tonbot/tonbot/address"
	"github.com/m3rciful/tonbot/tonbot/app"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "tonbot",
		Short:        "Telegram bot that connects TON wallets and sends transfers",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: $"+configEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBot(configPath)
			},
		},
		walletsCmd(&configPath),
		checkAddressCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
			},
		},
	)
	return root
}

func runBot(configPath string) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath:        configPath,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return coreconfig.Load(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.New(ctx, cfg.CoreConfig(), app.Options{})
		},
	})
}

// loadConfig reads the config for the offline subcommands. A missing bot
// token does not matter there.
func loadConfig(configPath string) (*coreconfig.Config, error) {
	path, err := corecmd.ResolveConfigPath(corecmd.Options{
		ConfigPath:        configPath,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
	})
	if err != nil {
		return nil, err
	}
	return coreconfig.LoadUnchecked(path)
}

func walletsCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "List wallets that can connect over the HTTP bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			dir := tonconnect.NewDirectory(cfg.TonConnect.WalletsListURL, 0, netutil.NewHTTPClient(netutil.APIOptions()))
			wallets, err := dir.Wallets(cmd.Context())
			if err != nil && len(wallets) == 0 {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "wallets list unavailable, using built-in list: %v\n", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(wallets)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APP\tNAME\tUNIVERSAL LINK\tBRIDGE")
			for _, w := range wallets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", w.AppName, w.Name, w.UniversalLink, w.BridgeURL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func checkAddressCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-address <address>...",
		Short: "Check addresses against the configured format rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rules := address.Rules{Length: cfg.TonConnect.AddressLength, Prefixes: cfg.TonConnect.AddressPrefixes}

			invalid := 0
			for _, a := range args {
				if rules.Valid(a) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tvalid\n", a)
					continue
				}
				invalid++
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid\n", a)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d addresses invalid", invalid, len(args))
			}
			return nil
		},
	}
}

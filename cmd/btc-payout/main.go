// btc-payout pays a CSV of (address, amount) targets from a single
// funding wallet in one transaction.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dan/btc-payout/esplora"
	"github.com/dan/btc-payout/payout"
	"github.com/dan/btc-payout/wallet"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "btc-payout",
		Short:        "Batch Bitcoin payouts from a single funding wallet",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("network", "testnet4", "Bitcoin network (mainnet, testnet4, signet)")
	pf.String("mnemonic", "", "BIP39 mnemonic for the funding key (taproot wallet)")
	pf.String("wif", "", "WIF-encoded funding key (legacy wallet)")
	pf.String("csv", "", "Path to the payout CSV (Address,Amount columns)")
	pf.String("api", "", "Esplora API base URL (defaults to mempool.space for the network)")
	pf.Int64("fee-rate", 0, "Fee rate in sat/vB (0 uses the network estimate)")
	pf.Bool("verbose", false, "Enable debug logging")

	viper.SetEnvPrefix("BTC_PAYOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(pf)

	root.AddCommand(sendCmd(), estimateCmd())
	return root
}

func sendCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Build, sign, confirm and broadcast the payout transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, targets, err := setup()
			if err != nil {
				return err
			}

			engine.Confirm = payout.StdinConfirm(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				engine.Confirm = payout.AlwaysConfirm
			}

			result, err := engine.Transfer(cmd.Context(), targets)
			if err != nil {
				return err
			}
			if result.Status == payout.StatusCancelled {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled, nothing was broadcast.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Broadcast: %s\n", result.Summary.TxID)
			if link := explorerLink(viper.GetString("network"), result.Summary.TxID); link != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Explorer:  %s\n", link)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func estimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate",
		Short: "Project the fee and change for the payout without signing",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, targets, err := setup()
			if err != nil {
				return err
			}

			est, err := engine.Estimate(cmd.Context(), targets)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Inputs:       %d\n", est.NumInputs)
			fmt.Fprintf(out, "Total payout: %d sats\n", est.TotalPayout)
			fmt.Fprintf(out, "Fee rate:     %d sat/vB\n", est.FeeRate)
			fmt.Fprintf(out, "Virtual size: %d vB\n", est.VirtualSize)
			fmt.Fprintf(out, "Fee:          %d sats\n", est.Fee)
			fmt.Fprintf(out, "Change:       %d sats\n", est.Change)
			return nil
		},
	}
}

// setup resolves the funding key, chain client and payout list from flags
// and environment.
func setup() (*payout.Engine, []payout.Target, error) {
	network := viper.GetString("network")
	mnemonic := viper.GetString("mnemonic")
	wif := viper.GetString("wif")
	csvPath := viper.GetString("csv")

	if csvPath == "" {
		return nil, nil, fmt.Errorf("--csv is required")
	}

	var (
		kp  *wallet.KeyPair
		err error
	)
	switch {
	case mnemonic != "" && wif != "":
		return nil, nil, fmt.Errorf("provide either --mnemonic or --wif, not both")
	case mnemonic != "":
		kp, err = wallet.FromMnemonic(mnemonic, network)
	case wif != "":
		kp, err = wallet.FromWIF(wif, network)
	default:
		return nil, nil, fmt.Errorf("a funding key is required (--mnemonic or --wif)")
	}
	if err != nil {
		return nil, nil, err
	}

	targets, err := payout.LoadTargets(csvPath)
	if err != nil {
		return nil, nil, err
	}

	baseURL := viper.GetString("api")
	if baseURL == "" {
		baseURL = esplora.DefaultBaseURL(network)
	}

	level := hclog.Info
	if viper.GetBool("verbose") {
		level = hclog.Debug
	}
	log := hclog.New(&hclog.LoggerOptions{
		Name:   "btc-payout",
		Level:  level,
		Output: os.Stderr,
	})

	return &payout.Engine{
		Chain:   esplora.NewClient(baseURL),
		Keys:    kp,
		Log:     log,
		FeeRate: viper.GetInt64("fee-rate"),
	}, targets, nil
}

func explorerLink(network, txid string) string {
	switch network {
	case "mainnet":
		return "https://mempool.space/tx/" + txid
	case "testnet4":
		return "https://mempool.space/testnet4/tx/" + txid
	case "signet":
		return "https://mempool.space/signet/tx/" + txid
	default:
		return ""
	}
}

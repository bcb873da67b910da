package cli

import (
	"log"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/wallet"
	"github.com/spf13/cobra"
)

var walletQRCmd = &cobra.Command{
	Use:   "wallet-qr <alias> --seed=1 --png=alice.png",
	Short: "export a scenario wallet (or a keystore key) as a QR code, sealed with an optional password",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := exportedWallet(args[0])
		export, err := wallet.NewExport(w, []byte(getPassword(true)))
		if err != nil {
			log.Fatal(err)
		}
		if pngPath != "" {
			writeToConsole("Wrote "+pngPath, orNil(export.WriteFile(pngPath, qrSize)))
			return
		}
		s, err := export.Terminal()
		writeToConsole(s, orNil(err))
	},
}

var (
	pngPath, fromKeystore = "", ""
	qrSize                = wallet.DefaultSize
)

func init() {
	walletQRCmd.Flags().Int64Var(&walletSeed, "seed", lib.DefaultHarnessConfig().Seed, "the harness seed the wallet is derived from")
	walletQRCmd.Flags().StringVar(&discrimination, "discrimination", "test", "test or production")
	walletQRCmd.Flags().StringVar(&fromKeystore, "keystore", "", "export this keystore key (public key or nickname) instead of a derived wallet")
	walletQRCmd.Flags().StringVar(&pngPath, "png", "", "write a png instead of printing to the terminal")
	walletQRCmd.Flags().IntVar(&qrSize, "size", wallet.DefaultSize, "png side in pixels")
}

// exportedWallet() derives the scenario wallet of the alias, or opens the keystore key named by the flag
func exportedWallet(alias string) *ledger.Wallet {
	var (
		w   *ledger.Wallet
		err lib.ErrorI
	)
	if fromKeystore == "" {
		w, err = ledger.NewWallet(alias, walletSeed, parseDiscrimination())
	} else {
		kg, e := loadKeystore().GetKeyGroup(fromKeystore, getPassword(false))
		if e != nil {
			log.Fatal(e)
		}
		w, err = ledger.NewWalletFromKeys(alias, kg, parseDiscrimination())
	}
	if err != nil {
		log.Fatal(err)
	}
	return w
}

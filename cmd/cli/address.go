package cli

import (
	"log"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:   "address <public-key> --kind=account --discrimination=test",
	Short: "encode a ledger address from ed25519 public keys",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sc := parseScheme(scheme)
		keys := []crypto.PublicKeyI{parsePublicKey(sc, args[0])}
		if delegation != "" {
			keys = append(keys, parsePublicKey(sc, delegation))
		}
		s, err := crypto.EncodeAddress(parseDiscrimination(), parseAddressKind(kind), keys...)
		writeToConsole(s, orNil(err))
	},
}

var (
	kind, delegation, discrimination = "", "", ""
	walletSeed                       = int64(0)
)

func init() {
	addressCmd.PersistentFlags().StringVar(&discrimination, "discrimination", "test", "test or production")
	addressCmd.Flags().StringVar(&scheme, "scheme", string(crypto.Ed25519), "ed25519 or ed25519-extended")
	addressCmd.Flags().StringVar(&kind, "kind", crypto.Account.String(), "single, group or account")
	addressCmd.Flags().StringVar(&delegation, "delegation", "", "delegation public key of a group address")
	addressWalletCmd.Flags().Int64Var(&walletSeed, "seed", lib.DefaultHarnessConfig().Seed, "the harness seed")
	addressCmd.AddCommand(addressDecodeCmd)
	addressCmd.AddCommand(addressWalletCmd)
}

var (
	addressDecodeCmd = &cobra.Command{
		Use:   "decode <address>",
		Short: "decode a bech32 ledger address",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a, err := crypto.DecodeAddress(args[0])
			if err != nil {
				log.Fatal(err)
			}
			writeToConsole(decodedAddress{
				Discrimination: a.Discrimination.String(),
				Kind:           a.Kind.String(),
				Spending:       lib.BytesToString(a.Spending),
				Delegation:     lib.BytesToString(a.Delegation),
				Legacy:         a.Legacy(),
			}, nil)
		},
	}

	addressWalletCmd = &cobra.Command{
		Use:   "wallet <alias> --seed=1",
		Short: "print the address a scenario wallet alias is funded at",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			w, err := ledger.NewWallet(args[0], walletSeed, parseDiscrimination())
			if err != nil {
				log.Fatal(err)
			}
			writeToConsole(w.Address.String(), nil)
		},
	}
)

// decodedAddress is the printable form of an address
type decodedAddress struct {
	Discrimination string `json:"discrimination"`
	Kind           string `json:"kind"`
	Spending       string `json:"spending"`
	Delegation     string `json:"delegation,omitempty"`
	Legacy         string `json:"legacy"`
}

func parseDiscrimination() crypto.Discrimination {
	d, err := crypto.ParseDiscrimination(discrimination)
	if err != nil {
		log.Fatal(err)
	}
	return d
}

func parseAddressKind(s string) crypto.AddressKind {
	for _, k := range crypto.AddressKinds {
		if k.String() == s {
			return k
		}
	}
	log.Fatal(lib.ErrEncoding("unknown address kind " + s))
	return 0
}

package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "generate key pairs and manage the keystore of the data directory",
}

var (
	scheme, label, nick = "", "", ""
	seed                = int64(0)
	importKey           = false
)

func init() {
	keysNewCmd.Flags().StringVar(&scheme, "scheme", string(crypto.Ed25519), "ed25519, ed25519-extended, bls12381 or secp256k1")
	keysNewCmd.Flags().Int64Var(&seed, "seed", 0, "derive the pair from a seed, 0 uses system randomness")
	keysNewCmd.Flags().StringVar(&label, "label", "", "sub-stream label of the seed")
	keysNewCmd.Flags().BoolVar(&importKey, "import", false, "encrypt the pair into the keystore")
	keysCmd.PersistentFlags().StringVar(&nick, "nickname", "", "nickname of the key in the keystore")
	keysCmd.AddCommand(keysNewCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysGetCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}

var (
	keysNewCmd = &cobra.Command{
		Use:   "new --scheme=ed25519 --seed=1 --label=wallet/alice --import --nickname=alice",
		Short: "generate a key pair",
		Run: func(cmd *cobra.Command, args []string) {
			kg, err := crypto.GenerateKeyPair(parseScheme(scheme), keySource())
			if err != nil {
				log.Fatal(err)
			}
			if !importKey {
				writeToConsole(kg, nil)
				return
			}
			ks := loadKeystore()
			encrypted, err := ks.Import(kg, getPassword(false), nick)
			if err != nil {
				log.Fatal(err)
			}
			writeToConsole(encrypted, orNil(ks.SaveToFile(DataDir)))
		},
	}

	keysListCmd = &cobra.Command{
		Use:   "list",
		Short: "list the encrypted keys of the keystore",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(loadKeystore().List(), nil)
		},
	}

	keysGetCmd = &cobra.Command{
		Use:   "get <public-key-or-nickname>",
		Short: "decrypt a key of the keystore",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			kg, err := loadKeystore().GetKeyGroup(args[0], getPassword(false))
			writeToConsole(kg, orNil(err))
		},
	}

	keysDeleteCmd = &cobra.Command{
		Use:   "delete <public-key-or-nickname>",
		Short: "remove a key from the keystore",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ks := loadKeystore()
			ks.DeleteKey(args[0])
			writeToConsole(fmt.Sprintf("Deleted %s", args[0]), orNil(ks.SaveToFile(DataDir)))
		},
	}
)

// keySource() is the seeded stream of the flags, or nil for system randomness
func keySource() io.Reader {
	if seed == 0 {
		return nil
	}
	return crypto.Derive(seed, label)
}

func loadKeystore() *crypto.Keystore {
	ks, err := crypto.NewKeystoreFromFile(DataDir)
	if err != nil {
		log.Fatal(err)
	}
	return ks
}

func parseScheme(s string) crypto.Scheme {
	for _, sc := range crypto.Schemes {
		if string(sc) == s {
			return sc
		}
	}
	log.Fatal(lib.ErrUnknownScheme(s))
	return ""
}

// parsePublicKey() reads a hex public key of the scheme
func parsePublicKey(sc crypto.Scheme, s string) crypto.PublicKeyI {
	bz, err := hex.DecodeString(s)
	if err != nil {
		log.Fatal(lib.ErrStringToBytes(err))
	}
	pub, e := crypto.NewPublicKeyFromBytes(sc, bz)
	if e != nil {
		log.Fatal(e)
	}
	return pub
}

// orNil() keeps a nil lib.ErrorI from becoming a non-nil error
func orNil(err lib.ErrorI) error {
	if err == nil {
		return nil
	}
	return err
}

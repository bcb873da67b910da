package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/canopy-network/mocknet/lib"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SoftwareVersion is the release of the mocknet binary
const SoftwareVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "mocknet",
	Short:   "a mock blockchain network for scenario testing",
	Version: SoftwareVersion,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(SoftwareVersion)
	},
}

var (
	l                   = lib.NewNullLogger()
	DataDir, configPath = "", ""
	pwd, outputFormat   = "", ""
	launcher            = ""
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(walletQRCmd)
	rootCmd.AddCommand(mocknodeCmd)
	rootCmd.PersistentFlags().StringVar(&DataDir, "data-dir", lib.DefaultDataDirPath(), "custom data directory location")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (json or yaml), defaults to <data-dir>/config.json")
	rootCmd.PersistentFlags().StringVar(&pwd, "password", "", "input a private key password (not recommended)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// loadConfig() reads the config file, writing the defaults into the data directory on first use
func loadConfig() lib.Config {
	if err := os.MkdirAll(DataDir, os.ModePerm); err != nil {
		log.Fatal(err)
	}
	path := configPath
	if path == "" {
		path = filepath.Join(DataDir, lib.ConfigFilePath)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			c := lib.DefaultConfig()
			c.DataDirPath = DataDir
			if err = c.WriteToFile(path); err != nil {
				log.Fatal(err)
			}
		}
	}
	c, err := lib.NewConfigFromFile(path)
	if err != nil {
		log.Fatal(err)
	}
	c.DataDirPath = DataDir
	if launcher != "" {
		c.Launcher = launcher
	}
	if nodeCount > 0 {
		c.NodeCount = nodeCount
	}
	// the process launcher runs this binary's mocknode command unless told otherwise
	if c.Launcher == lib.ProcessLauncher && c.BinaryPath == "" {
		if c.BinaryPath, err = os.Executable(); err != nil {
			log.Fatal(err)
		}
		c.BinaryArgs = []string{mocknodeCommand}
	}
	if e := c.Validate(); e != nil {
		log.Fatal(e)
	}
	return c
}

// newLogger() builds the file logger of the config with its console copy on stderr
func newLogger(c lib.Config) lib.LoggerI {
	return lib.NewLogger(lib.LoggerConfig{
		Level:  c.GetLogLevel(),
		JSON:   c.LogJSON,
		Stderr: true,
	}, c.DataDirPath)
}

// killContext() is cancelled when a kill signal is received
func killContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGABRT)
	go func() {
		select {
		case s := <-stop:
			l.Infof("Exit command %s received", s)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(stop)
	}()
	return ctx, cancel
}

// getPassword() reads the password flag or prompts for it without echo; empty is allowed when optional
func getPassword(optional bool) string {
	if pwd != "" {
		return pwd
	}
	fmt.Println("Enter password:")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		log.Fatal(err)
	}
	if len(password) == 0 && !optional {
		fmt.Println("Password cannot be empty")
		return getPassword(optional)
	}
	return string(password)
}

func writeToConsole(a any, err error) {
	if err != nil {
		log.Fatal(err.Error())
	}
	switch a.(type) {
	case int, uint32, uint64:
		p := message.NewPrinter(language.English)
		if _, err := p.Printf("%d\n", a); err != nil {
			log.Fatal(err.Error())
		}
	case string, *string:
		fmt.Println(a)
	default:
		s, err := lib.MarshalJSONIndentString(a)
		if err != nil {
			log.Fatal(err.Error())
		}
		fmt.Println(s)
	}
}

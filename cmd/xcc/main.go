// Command xcc is a just-in-time compiler and interactive evaluator for the
// xcc language.
//
// Usage:
//
//	xcc [options] <input.xcc>   compile and run a program (invokes main)
//	xcc [options]               enter the REPL
//
// REPL meta-commands:
//
//	/help or /h   print help
//	/quit or /q   exit
//	/list or /l   list global function symbols
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xcc-lang/xcc/internal/config"
	"github.com/xcc-lang/xcc/internal/diagnostic"
	"github.com/xcc-lang/xcc/pkg/api"
)

var (
	version = "0.2.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		printTokens bool
		printAST    bool
		printIR     bool
		poolSize    int
		configFile  string
		noConfig    bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:           "xcc [file]",
		Short:         "JIT compiler and REPL for the xcc language",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}

			cfg, err := loadConfig(cmd, configFile, noConfig, args)
			if err != nil {
				return err
			}

			flags := config.MergeFlags{}
			if cmd.Flags().Changed("print-tokens") {
				flags.PrintTokens = &printTokens
			}
			if cmd.Flags().Changed("print-ast") {
				flags.PrintAST = &printAST
			}
			if cmd.Flags().Changed("print-ir") {
				flags.PrintIR = &printIR
			}
			if cmd.Flags().Changed("pool") {
				flags.PoolSize = &poolSize
			}
			cfg = cfg.Merge(flags)

			session, err := api.NewSession(api.Options{
				PrintTokens: cfg.PrintTokens,
				PrintAST:    cfg.PrintAST,
				PrintIR:     cfg.PrintIR,
				PoolSize:    cfg.PoolSize,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			if len(args) == 1 {
				return runProgram(session, args[0])
			}
			return runRepl(session, cfg)
		},
	}

	cmd.Flags().BoolVar(&printTokens, "print-tokens", false, "Dump the token stream")
	cmd.Flags().BoolVar(&printAST, "print-ast", false, "Dump the parsed tree")
	cmd.Flags().BoolVar(&printIR, "print-ir", false, "Dump module IR before JIT")
	cmd.Flags().IntVar(&poolSize, "pool", 0, "JIT finalization pool size")
	cmd.Flags().StringVar(&configFile, "config", "", "Use specific config file")
	cmd.Flags().BoolVar(&noConfig, "no-config", false, "Ignore config files")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func loadConfig(cmd *cobra.Command, configFile string, noConfig bool, args []string) (*config.Config, error) {
	if noConfig {
		return config.Default(), nil
	}
	if configFile != "" {
		return config.LoadFile(configFile)
	}

	startDir, err := os.Getwd()
	if err != nil {
		startDir = "."
	}

	cfg, path, err := config.Load(startDir)
	if err != nil {
		return nil, err
	}
	if path != "" {
		logrus.Debugf("using config: %s", path)
	}
	return cfg, nil
}

// runProgram compiles a source file and invokes its main function; any
// error exits nonzero.
func runProgram(session *api.Session, path string) error {
	source, err := api.ReadSourceFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}

	if _, _, err := session.RunProgram(source); err != nil {
		fmt.Fprintln(os.Stderr, diagnostic.FromError(err).Format(source))
		return err
	}
	return nil
}

// runRepl compiles incrementally, retaining previously defined functions,
// globals and user types across entries.
func runRepl(session *api.Session, cfg *config.Config) error {
	fmt.Printf("xcc repl v%s\n", version)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(cfg.Prompt)

		if !scanner.Scan() {
			fmt.Println("EOF")
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := metaCommand(session, line); quit {
				return nil
			}
			continue
		}

		value, hasValue, err := session.Eval(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, diagnostic.FromError(err).Format(line))
			continue
		}
		if hasValue {
			if rendered := value.String(); rendered != "" {
				fmt.Println(rendered)
			}
		}
	}
}

// metaCommand handles /-prefixed REPL commands; it returns true on /quit.
func metaCommand(session *api.Session, line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/q":
		return true

	case "/help", "/h":
		fmt.Println("/help or /h - Prints this message")
		fmt.Println("/quit or /q - Exits from REPL")
		fmt.Println("/list or /l - List global function symbols")

	case "/list", "/l":
		for _, sig := range session.Functions() {
			fmt.Println(sig)
		}

	default:
		fmt.Printf("unknown command '%s' (try /help)\n", line)
	}
	return false
}

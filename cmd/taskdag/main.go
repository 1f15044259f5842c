// Command taskdag is a thin CLI wrapper around the dag engine: it
// contains no scheduling or validation logic of its own, only flag
// parsing, configuration loading, and result reporting, mirroring
// cmd/divinesense/main.go's cobra/viper/godotenv shape.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/taskdag/dag"
	_ "github.com/hrygo/taskdag/yamlparser"
)

var rootCmd = &cobra.Command{
	Use:   "taskdag",
	Short: "Run a declared task graph concurrently in dependency order.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a YAML task graph to completion.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "path to the YAML task graph (required)")
	runCmd.Flags().Bool("keep-going", false, "do not cancel remaining tasks after one fails")
	runCmd.Flags().StringArray("var", nil, "substitution variable as key=value, may be repeated")
	runCmd.Flags().Duration("timeout", 0, "abort the run after this duration (0 disables)")

	if err := viper.BindPFlag("file", runCmd.Flags().Lookup("file")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("keep-going", runCmd.Flags().Lookup("keep-going")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("var", runCmd.Flags().Lookup("var")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("timeout", runCmd.Flags().Lookup("timeout")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("taskdag")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	file := viper.GetString("file")
	if file == "" {
		return errRequiredFlag("file")
	}

	vars := parseVars(viper.GetStringSlice("var"))

	engine, err := dag.WithYAML(file, vars)
	if err != nil {
		return err
	}
	if viper.GetBool("keep-going") {
		engine.KeepGoing()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, timeout)
		defer timeoutCancel()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		slog.Warn("taskdag: interrupted, cancelling run")
		cancel()
	}()

	ok, err := engine.Start(ctx)
	if err != nil {
		slog.Error("taskdag: run failed to start", "error", err)
		return err
	}

	if !ok {
		slog.Error("taskdag: run finished with at least one task failure")
		os.Exit(1)
	}

	slog.Info("taskdag: run finished successfully")
	return nil
}

// parseVars splits "key=value" entries, dropping any without an "=".
func parseVars(raw []string) map[string]string {
	vars := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[k] = v
	}
	return vars
}

func errRequiredFlag(name string) error {
	return &requiredFlagError{name: name}
}

type requiredFlagError struct {
	name string
}

func (e *requiredFlagError) Error() string {
	return "taskdag: --" + e.name + " is required"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

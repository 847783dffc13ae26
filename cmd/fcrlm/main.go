// Command fcrlm runs causal relevance-feedback experiments over TREC
// collections. "index" loads SGML documents into the shard directories,
// "publish" sends them to the indexer service through Kafka, and "run"
// executes the three-round pipeline for a topic file and writes a trec_eval
// run file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "fcrlm",
	Short:         "fcrlm runs causal relevance-feedback retrieval experiments",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (defaults and SP_* environment when empty)")
	rootCmd.AddCommand(indexCmd, publishCmd, runCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

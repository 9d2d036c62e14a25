package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/KaramelBytes/sheetqa/internal/server"
	"github.com/spf13/cobra"
)

var (
	srvAddr       string
	srvProvider   string
	srvModel      string
	srvOllamaHost string
	srvTimeoutSec int
	srvNoHistory  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question-answering API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ropts := runtimeOptions{
			ProviderFlag: srvProvider,
			ModelFlag:    srvModel,
			OllamaHost:   srvOllamaHost,
			TimeoutSec:   srvTimeoutSec,
		}
		rr, err := buildRuntime(cfg, ropts)
		if err != nil {
			return err
		}
		opts := server.Options{Addr: srvAddr, QueryLimit: 500}
		if cfg != nil {
			if opts.Addr == "" {
				opts.Addr = cfg.ServerAddr
			}
			opts.AllowedOrigins = cfg.CORSAllowedOrigins
			opts.MaxUploadBytes = int64(cfg.MaxUploadMB) << 20
			if !srvNoHistory {
				opts.HistoryDir = cfg.HistoryDir
			}
		}
		srv := server.New(orchestratorFor(rr, cfg, ropts, nil), opts, logger)
		logger.Info("runtime ready", "provider", rr.provider, "model", rr.model)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", "", "listen address (defaults to config server_addr, :8080)")
	serveCmd.Flags().StringVar(&srvProvider, "provider", "", "runtime: ollama|openai|openrouter (defaults to config)")
	serveCmd.Flags().StringVarP(&srvModel, "model", "m", "", "model name (defaults to config)")
	serveCmd.Flags().StringVar(&srvOllamaHost, "ollama-host", "", "Ollama base URL (defaults to config)")
	serveCmd.Flags().IntVar(&srvTimeoutSec, "timeout-sec", 0, "bound on one answer in seconds (default 30)")
	serveCmd.Flags().BoolVar(&srvNoHistory, "no-history", false, "do not persist session logs to history_dir")
}

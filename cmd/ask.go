package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/assistant"
	"github.com/KaramelBytes/sheetqa/internal/render"
	"github.com/KaramelBytes/sheetqa/internal/sqlexec"
	"github.com/spf13/cobra"
)

var (
	askLoad        loadFlags
	askProvider    string
	askModel       string
	askOllamaHost  string
	askStream      bool
	askTimeoutSec  int
	askRunSQL      bool
	askHistoryFile string
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask <file> [question]",
	Short: "Ask questions about a table; without a question, start an interactive session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, _, err := askLoad.load(args[0])
		if err != nil {
			return err
		}
		sess := assistant.NewSession()
		sess.Load(table)
		if !sess.HasData() {
			return fmt.Errorf("%s: %w", args[0], assistant.ErrNoDataLoaded)
		}
		if askHistoryFile != "" {
			if err := sess.LoadHistory(askHistoryFile); err != nil {
				return err
			}
		}

		ropts := runtimeOptions{
			ProviderFlag: askProvider,
			ModelFlag:    askModel,
			OllamaHost:   askOllamaHost,
			TimeoutSec:   askTimeoutSec,
			Stream:       askStream,
		}
		rr, err := buildRuntime(cfg, ropts)
		if err != nil {
			return err
		}
		var onDelta func(string)
		if askStream && !askJSON {
			errw := cmd.ErrOrStderr()
			onDelta = func(s string) { fmt.Fprint(errw, s) }
		}
		t := &askTurn{
			orch: orchestratorFor(rr, cfg, ropts, onDelta),
			rr:   rr,
			sess: sess,
			out:  cmd.OutOrStdout(),
			errw: cmd.ErrOrStderr(),
		}
		defer t.close()

		if len(args) > 1 {
			return t.ask(cmd.Context(), strings.Join(args[1:], " "))
		}
		return t.repl(cmd.Context(), cmd.InOrStdin())
	},
}

// askTurn holds the state shared by consecutive questions of one run.
type askTurn struct {
	orch *assistant.Orchestrator
	rr   *resolvedRuntime
	sess *assistant.Session
	db   *sqlexec.DB
	out  io.Writer
	errw io.Writer
}

func (t *askTurn) ask(ctx context.Context, question string) error {
	res, err := t.orch.Ask(ctx, t.sess, question)
	if err != nil {
		return err
	}
	if askHistoryFile != "" {
		if err := t.sess.SaveHistory(askHistoryFile); err != nil {
			fmt.Fprintf(t.errw, "⚠ Warning: could not save history: %v\n", err)
		}
	}
	if askStream && !askJSON {
		fmt.Fprintln(t.errw)
	}
	if hint := degradedHint(t.rr, res); hint != "" {
		fmt.Fprintln(t.errw, "⚠ "+hint)
	}

	var rows *sqlexec.Result
	if askRunSQL && res.SQLQuery != "" && res.ErrorKind == "" {
		rows, err = t.runSQL(ctx, res.SQLQuery)
		if err != nil {
			fmt.Fprintf(t.errw, "⚠ Suggested SQL failed: %v\n", err)
		}
	}

	if askJSON {
		payload := map[string]any{"result": res}
		if rows != nil {
			payload["rows"] = rows
		}
		return printJSON(t.out, payload)
	}
	if err := render.Result(t.out, res); err != nil {
		return err
	}
	if rows != nil {
		fmt.Fprintln(t.out)
		return render.Rows(t.out, rows)
	}
	return nil
}

func (t *askTurn) runSQL(ctx context.Context, query string) (*sqlexec.Result, error) {
	if t.db == nil {
		db, err := sqlexec.Open(ctx, t.sess.Schema(), t.sess.Records())
		if err != nil {
			return nil, err
		}
		t.db = db
	}
	return t.db.Query(ctx, query, sqlexec.DefaultLimit)
}

// repl reads one question per line until EOF or "exit".
func (t *askTurn) repl(ctx context.Context, in io.Reader) error {
	schema := t.sess.Schema()
	fmt.Fprintf(t.errw, "Loaded %s: %d rows, columns: %s\n", schema.TableName, len(t.sess.Records()), strings.Join(schema.Names(), ", "))
	fmt.Fprintln(t.errw, "Ask a question, or type 'exit' to quit.")
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(t.errw, "› ")
		if !sc.Scan() {
			fmt.Fprintln(t.errw)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := t.ask(ctx, line); err != nil {
			if errors.Is(err, assistant.ErrEmptyQuestion) || errors.Is(err, assistant.ErrBusy) {
				fmt.Fprintln(t.errw, "⚠ "+err.Error())
				continue
			}
			return err
		}
		fmt.Fprintln(t.out)
	}
}

func (t *askTurn) close() {
	if t.db != nil {
		t.db.Close()
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
	askLoad.register(askCmd)
	askCmd.Flags().StringVar(&askProvider, "provider", "", "runtime: ollama|openai|openrouter (defaults to config)")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model name (defaults to config)")
	askCmd.Flags().StringVar(&askOllamaHost, "ollama-host", "", "Ollama base URL (defaults to config)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the raw reply to stderr while it is generated")
	askCmd.Flags().IntVar(&askTimeoutSec, "timeout-sec", 0, "bound on one answer in seconds (default 30)")
	askCmd.Flags().BoolVar(&askRunSQL, "run-sql", false, "execute the suggested SQL against the table and print the rows")
	askCmd.Flags().StringVar(&askHistoryFile, "history-file", "", "load and save the conversation log at this path")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print results as JSON")
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/backend"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/export"
	"github.com/parleyhq/parley/internal/storage"
)

var (
	dbPath    string
	cfgPath   string
	debugFlag bool
	appConfig *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Multi-model AI debate tool",
	Long: `parley orchestrates debates between AI models from different vendors.

Pose a question, watch the models argue it out in persona, steer the
debate with interjections, and get a synthesized consensus with action
items at the end.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if debugFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		if cfgPath != "" {
			appConfig, err = config.LoadFrom(cfgPath)
		} else {
			appConfig, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.parley/parley.db)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.parley/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(configCmd)
}

func getStorage() (storage.Store, error) {
	path := dbPath
	if path == "" {
		path = storage.DefaultDBPath()
	}

	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func getRegistry() (*backend.Registry, error) {
	if mockFlag {
		registry := backend.NewRegistry()
		registry.Register("mock-a", func() backend.Backend {
			return backend.NewMock(backend.MockConfig{ID: "mock-a", Responses: []string{
				"Let me lay out the trade-offs as I see them.",
				"Your point about operational cost is fair. I agree we should start small.",
			}})
		})
		registry.Register("mock-b", func() backend.Backend {
			return backend.NewMock(backend.MockConfig{ID: "mock-b", Responses: []string{
				"I want to push back on the framing before we commit.",
				"With that scoped down, I agree with the plan.",
			}})
		})
		registry.SetDefaultRoster("mock-a", "mock-b")
		return registry, nil
	}
	return appConfig.CreateRegistry()
}

// ============================================================================
// RUN COMMAND
// ============================================================================

var runCmd = &cobra.Command{
	Use:   "run [question]",
	Short: "Run a debate on a question",
	Long: `Start a debate and stream it to the terminal.

While the debate runs you can type:
  !<text>    interject (challenge the current line of argument)
  /end       stop debating and synthesize a consensus now
  /cancel    abort the debate

Examples:
  parley run "Should we migrate to gRPC?"
  parley run "Monorepo or polyrepo?" --roster anthropic,gemini --turns 6
  parley run "Test question" --mock --no-save`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDebate,
}

var (
	rosterFlag    string
	turnsFlag     int
	contextFlag   string
	synthesisFlag string
	mockFlag      bool
	noSaveFlag    bool
)

func init() {
	runCmd.Flags().StringVarP(&rosterFlag, "roster", "r", "", "Comma-separated backend IDs in speaking order")
	runCmd.Flags().IntVarP(&turnsFlag, "turns", "t", 0, "Cap on participant messages (default 10)")
	runCmd.Flags().StringVarP(&contextFlag, "context", "c", "", "Environment context for the opening prompt")
	runCmd.Flags().StringVar(&synthesisFlag, "synthesis", "", "Backend that writes the consensus")
	runCmd.Flags().BoolVar(&mockFlag, "mock", false, "Use offline scripted backends")
	runCmd.Flags().BoolVar(&noSaveFlag, "no-save", false, "Do not persist the session")
}

func runDebate(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	registry, err := getRegistry()
	if err != nil {
		return err
	}

	var store storage.Store
	if !noSaveFlag {
		store, err = getStorage()
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()
	}

	var saveHook storage.SaveHook
	if store != nil {
		saveHook = store
	}
	manager := engine.NewManager(registry, saveHook, slog.Default())

	var roster []string
	if rosterFlag != "" {
		for _, id := range strings.Split(rosterFlag, ",") {
			if id = strings.TrimSpace(id); id != "" {
				roster = append(roster, id)
			}
		}
	} else if !mockFlag {
		roster = appConfig.Defaults.Roster
	}
	maxTurns := turnsFlag
	if maxTurns == 0 {
		maxTurns = appConfig.Defaults.MaxTurns
	}
	synthesis := synthesisFlag
	if synthesis == "" {
		synthesis = appConfig.Defaults.SynthesisBackend
	}

	o, err := manager.StartDebate(question, engine.Options{
		Roster:           roster,
		MaxTurns:         maxTurns,
		AppContext:       contextFlag,
		SynthesisBackend: synthesis,
	})
	if err != nil {
		return err
	}

	session := o.Session()
	fmt.Printf("Debate %s\n", session.ID)
	fmt.Printf("Question: %s\n", session.Question)
	for _, p := range session.Participants {
		fmt.Printf("  - %s\n", p.Name)
	}
	fmt.Println()

	go readCommands(os.Stdin, o)
	streamToTerminal(o)

	final := o.Session()
	printOutcome(final)
	if final.Status == core.StatusError {
		return fmt.Errorf("debate failed: %s", final.StatusReason)
	}
	return nil
}

// readCommands turns stdin lines into interjections and control actions.
func readCommands(r io.Reader, o *engine.Orchestrator) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/end":
			if err := o.EndDebate(); err != nil {
				fmt.Fprintf(os.Stderr, "end: %v\n", err)
			}
		case line == "/cancel":
			if err := o.Cancel(); err != nil {
				fmt.Fprintf(os.Stderr, "cancel: %v\n", err)
			}
		case strings.HasPrefix(line, "!"):
			err := o.Interject(core.Interjection{
				Content: strings.TrimSpace(line[1:]),
				Kind:    core.InterjectChallenge,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "interject: %v\n", err)
			} else {
				fmt.Println("[interjection queued]")
			}
		}
	}
}

// streamToTerminal prints live events until the debate finishes.
func streamToTerminal(o *engine.Orchestrator) {
	events, unsubscribe := o.Subscribe()
	defer unsubscribe()

	session := o.Session()
	names := make(map[string]string, len(session.Participants))
	for _, p := range session.Participants {
		names[p.ID] = p.Name
	}

	var lastSpeaker string
	for ev := range events {
		switch ev.Type {
		case engine.EventChunk:
			if ev.Chunk.Reasoning {
				continue
			}
			if ev.Chunk.ParticipantID != lastSpeaker {
				name := names[ev.Chunk.ParticipantID]
				fmt.Printf("\n--- %s (turn %d) ---\n", name, ev.Chunk.Turn)
				lastSpeaker = ev.Chunk.ParticipantID
			}
			fmt.Print(ev.Chunk.Text)
		case engine.EventMessage:
			if ev.Message.Interjection != nil {
				fmt.Printf("\n--- Human interjection (turn %d) ---\n%s\n", ev.Message.Turn, ev.Message.Content)
				lastSpeaker = ""
			} else {
				fmt.Println()
			}
		case engine.EventStatus:
			switch ev.Status {
			case core.StatusSynthesizing:
				fmt.Println("\n[synthesizing consensus...]")
			case core.StatusError:
				fmt.Printf("\n[error: %s]\n", ev.Reason)
			}
		}
	}
}

func printOutcome(session *core.Session) {
	if session.Consensus != nil {
		fmt.Println("\n=== Consensus ===")
		fmt.Println(session.Consensus.Summary)
		if len(session.Consensus.ActionItems) > 0 {
			fmt.Println("\nAction items:")
			for _, item := range session.Consensus.ActionItems {
				fmt.Printf("  - %s\n", item)
			}
		}
	}

	if len(session.Cost.Rows) > 0 {
		fmt.Println("\n=== Cost ===")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BACKEND\tINPUT\tOUTPUT\tCOST (USD)")
		for _, row := range session.Cost.Rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\n", row.BackendID, row.InputTokens, row.OutputTokens, row.Cost)
		}
		fmt.Fprintf(w, "total\t%d\t%d\t%.4f\n",
			session.Cost.TotalInputTokens, session.Cost.TotalOutputTokens, session.Cost.TotalCost)
		w.Flush()
	}
}

// ============================================================================
// LIST / SHOW / DELETE
// ============================================================================

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved debates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		summaries, err := store.ListSessions(50, 0)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No debates yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tQUESTION\tSTATUS\tMESSAGES\tCOST\tCREATED")
		for _, s := range summaries {
			question := s.Question
			if len(question) > 48 {
				question = question[:45] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%s\n",
				shortID(s.ID), question, s.Status, s.MessageCount, s.TotalCost,
				s.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a debate transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		session, err := store.GetSession(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Question: %s\n", session.Question)
		fmt.Printf("Status:   %s", session.Status)
		if session.StatusReason != "" {
			fmt.Printf(" (%s)", session.StatusReason)
		}
		fmt.Println()
		for _, p := range session.Participants {
			fmt.Printf("  - %s\n", p.Name)
		}

		for _, m := range session.Messages {
			name := "Human"
			if p := session.ParticipantByID(m.ParticipantID); p != nil {
				name = p.Name
			}
			fmt.Printf("\n--- %s (turn %d) ---\n%s\n", name, m.Turn, m.Content)
		}

		printOutcome(session)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a saved debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteSession(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// ============================================================================
// EXPORT COMMAND
// ============================================================================

var exportFormatFlag string
var exportOutputFlag string

var exportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export a debate to markdown, json, or pdf",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		session, err := store.GetSession(args[0])
		if err != nil {
			return err
		}

		exporter, err := export.GetExporter(export.Format(exportFormatFlag))
		if err != nil {
			return err
		}

		path := exportOutputFlag
		if path == "" {
			path = export.GenerateFilename(session, exporter.FileExtension())
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()

		if err := exporter.Export(session, f); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Exported to %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormatFlag, "format", "f", "markdown", "Export format (markdown, json, pdf)")
	exportCmd.Flags().StringVarP(&exportOutputFlag, "output", "o", "", "Output file (default: generated name)")
}

// ============================================================================
// BACKENDS / CONFIG
// ============================================================================

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List configured backends and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := getRegistry()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODEL\tVENDOR\tAVAILABLE")
		for _, id := range registry.Known() {
			b, err := registry.Resolve(id)
			if err != nil {
				continue
			}
			d := b.Descriptor()
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", id, d.Model, d.Vendor, b.Available())
		}
		return w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print an example configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(config.GenerateExample())
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

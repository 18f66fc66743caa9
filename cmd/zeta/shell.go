package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/766974616c79/zeta/pkg/common/log"
	"github.com/766974616c79/zeta/pkg/config"
	"github.com/766974616c79/zeta/pkg/engine"
	"github.com/766974616c79/zeta/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".load"),
	readline.PcItem(".save"),
	readline.PcItem(".stats"),
	readline.PcItem(".blocks"),
	readline.PcItem(".exit"),
	readline.PcItem("INSERT"),
	readline.PcItem("QUERY"),
	readline.PcItem("MATCH"),
)

const helpText = `
Zeta (zeta) - An append-only text retrieval engine.

Usage:
  zeta [options] [database_path]  - Start with an optional database path

Commands:
  .help                   - Show this help message
  .open PATH              - Open the database at PATH, loading it if saved
  .load                   - Reload the saved database, discarding unsaved records
  .save                   - Write every block to disk
  .stats                  - Show database statistics
  .blocks                 - List blocks and whether their records are resident
  .exit                   - Exit the program (unsaved records are lost)

  INSERT text             - Append a record
  QUERY words             - Records containing any of the words
  MATCH words             - Records containing all of the words
`

// sharedTelemetry keeps engines from shutting down the process-wide
// telemetry when the shell swaps databases.
type sharedTelemetry struct {
	telemetry.Telemetry
}

func (sharedTelemetry) Shutdown(context.Context) error { return nil }

type shell struct {
	cfg    *config.Config
	logger log.Logger
	tel    telemetry.Telemetry
	out    io.Writer

	eng *engine.Engine
}

func newShell(cfg *config.Config, logger log.Logger, tel telemetry.Telemetry, out io.Writer) *shell {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &shell{cfg: cfg, logger: logger, tel: sharedTelemetry{tel}, out: out}
}

// open replaces the current database with the one rooted at root. A
// directory without saved artifacts opens as an empty database.
func (s *shell) open(root string) error {
	cfg := s.cfg.Clone()
	cfg.Update(func(c *config.Config) { c.Root = root })

	eng, err := engine.Open(cfg, engine.WithLogger(s.logger), engine.WithTelemetry(s.tel))
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.BloomPath()); err == nil {
		if err := eng.Load(); err != nil {
			eng.Close()
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		eng.Close()
		return err
	}

	s.close()
	s.eng = eng
	return nil
}

func (s *shell) close() {
	if s.eng != nil {
		s.eng.Close()
		s.eng = nil
	}
}

func (s *shell) prompt() string {
	if s.eng == nil {
		return "zeta> "
	}
	return fmt.Sprintf("zeta:%s> ", s.eng.Root())
}

// execute runs one command line. It reports false once the shell should exit.
func (s *shell) execute(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	if strings.HasPrefix(cmd, ".") {
		switch strings.ToLower(cmd) {
		case ".help":
			fmt.Fprint(s.out, helpText)

		case ".exit":
			s.close()
			fmt.Fprintln(s.out, "Goodbye!")
			return false

		case ".open":
			if arg == "" {
				fmt.Fprintln(s.out, "Error: Missing path argument")
				break
			}
			if err := s.open(arg); err != nil {
				fmt.Fprintf(s.out, "Error opening database: %s\n", err)
				break
			}
			fmt.Fprintf(s.out, "Database opened at %s (%d blocks)\n", arg, s.eng.Len())

		default:
			if s.eng == nil {
				fmt.Fprintln(s.out, "Error: No database open")
				break
			}
			s.dotCommand(strings.ToLower(cmd))
		}
		return true
	}

	if s.eng == nil {
		fmt.Fprintln(s.out, "Error: No database open")
		return true
	}

	switch strings.ToUpper(cmd) {
	case "INSERT":
		if arg == "" {
			fmt.Fprintln(s.out, "Error: INSERT requires a text argument")
			break
		}
		if err := s.eng.Insert(arg); err != nil {
			fmt.Fprintf(s.out, "Error inserting record: %s\n", err)
			break
		}
		fmt.Fprintln(s.out, "Record inserted")

	case "QUERY":
		start := time.Now()
		results, err := s.eng.Query(arg)
		if err != nil {
			fmt.Fprintf(s.out, "Error querying: %s\n", err)
			break
		}
		for _, r := range results {
			fmt.Fprintln(s.out, r)
		}
		fmt.Fprintf(s.out, "%d results (%.2f ms)\n", len(results), millis(start))

	case "MATCH":
		start := time.Now()
		hits, err := s.eng.Search(arg, engine.MatchAll)
		if err != nil {
			fmt.Fprintf(s.out, "Error searching: %s\n", err)
			break
		}
		for _, h := range hits {
			fmt.Fprintf(s.out, "[%d:%d] %s\n", h.Block, h.Ordinal, h.Text)
		}
		fmt.Fprintf(s.out, "%d results (%.2f ms)\n", len(hits), millis(start))

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}
	return true
}

func (s *shell) dotCommand(cmd string) {
	switch cmd {
	case ".load":
		start := time.Now()
		if err := s.eng.Load(); err != nil {
			fmt.Fprintf(s.out, "Error loading database: %s\n", err)
			return
		}
		fmt.Fprintf(s.out, "Loaded %d blocks (%.2f ms)\n", s.eng.Len(), millis(start))

	case ".save":
		start := time.Now()
		if err := s.eng.Save(); err != nil {
			fmt.Fprintf(s.out, "Error saving database: %s\n", err)
			return
		}
		fmt.Fprintf(s.out, "Saved %d blocks (%.2f ms)\n", s.eng.Len(), millis(start))

	case ".stats":
		s.printStats()

	case ".blocks":
		blocks := s.eng.Blocks()
		if len(blocks) == 0 {
			fmt.Fprintln(s.out, "No blocks")
			return
		}
		for _, b := range blocks {
			state := "cold"
			records := "?"
			if b.Resident {
				state = "resident"
				records = fmt.Sprint(b.Records)
			}
			fmt.Fprintf(s.out, "  block %d: %s, %s records, %d words, bloom %.2f%% full\n",
				b.ID, state, records, b.Words, b.BloomFill*100)
		}

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}
}

func (s *shell) printStats() {
	st := s.eng.Stats()
	fmt.Fprintln(s.out, "Database Statistics:")
	fmt.Fprintf(s.out, "  Root: %v (codec %v)\n", st["root"], st["codec"])
	fmt.Fprintf(s.out, "  Blocks: %v total, %v resident\n", st["blocks"], st["resident_blocks"])
	fmt.Fprintf(s.out, "  Operations: %v inserts, %v queries, %v searches, %v loads, %v saves\n",
		st["insert_ops"], st["query_ops"], st["search_ops"], st["load_ops"], st["save_ops"])
	fmt.Fprintf(s.out, "  Probes: %v blocks probed, %v skipped by bloom filter\n",
		st["blocks_probed"], st["blocks_skipped"])
	fmt.Fprintf(s.out, "  Storage: %v bytes read, %v bytes written, %v materializations\n",
		st["total_bytes_read"], st["total_bytes_written"], st["materializations"])

	if errs, ok := st["errors"].(map[string]uint64); ok && len(errs) > 0 {
		kinds := make([]string, 0, len(errs))
		for k := range errs {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintln(s.out, "  Errors:")
		for _, k := range kinds {
			fmt.Fprintf(s.out, "    %s: %d\n", k, errs[k])
		}
	}
}

func millis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// runInteractive starts the interactive CLI mode
func runInteractive(sh *shell) {
	fmt.Fprintln(sh.out, "Zeta (zeta) version 0.1.0")
	fmt.Fprintln(sh.out, "Enter .help for usage hints.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), ".zeta_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(sh.prompt())

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			} else if errors.Is(err, io.EOF) {
				sh.close()
				fmt.Fprintln(sh.out, "Goodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			continue
		}

		if !sh.execute(line) {
			return
		}
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/766974616c79/zeta/pkg/common/log"
	"github.com/766974616c79/zeta/pkg/config"
	"github.com/766974616c79/zeta/pkg/telemetry"
)

// options holds the command line configuration
type options struct {
	Root        string
	ConfigFile  string
	Codec       string
	LogLevel    string
	ImportFile  string
	Telemetry   bool
	MetricsAddr string
}

func main() {
	opts := parseFlags()

	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}
	logger := log.NewStandardLogger(log.WithLevel(level), log.WithOutput(os.Stderr))
	log.SetDefaultLogger(logger)

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	tel, err := setupTelemetry(opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("Telemetry shutdown failed: %v", err)
		}
	}()

	sh := newShell(cfg, logger, tel, os.Stdout)
	if err := sh.open(cfg.Root); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err)
		os.Exit(1)
	}
	defer sh.close()

	if opts.ImportFile != "" {
		if err := importFile(sh, opts.ImportFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing %s: %s\n", opts.ImportFile, err)
			os.Exit(1)
		}
		return
	}

	setupGracefulShutdown(sh)
	runInteractive(sh)
}

// parseFlags parses command line flags and returns the options
func parseFlags() options {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Zeta - An append-only text retrieval engine\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: zeta [options] [database_path]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nFor the interactive commands, start zeta and type .help\n")
	}

	root := flag.String("root", "", "Database directory (defaults to the first argument or the current directory)")
	configFile := flag.String("config", "", "JSON or YAML configuration file")
	codecName := flag.String("codec", "", "Record compression codec: lz4, zstd, snappy, s2 or none")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	importFile := flag.String("import", "", "Insert every line of FILE, save and exit")
	tel := flag.Bool("telemetry", false, "Enable OpenTelemetry tracing and metrics")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (implies -telemetry)")

	flag.Parse()

	opts := options{
		Root:        *root,
		ConfigFile:  *configFile,
		Codec:       *codecName,
		LogLevel:    *logLevel,
		ImportFile:  *importFile,
		Telemetry:   *tel,
		MetricsAddr: *metricsAddr,
	}
	if opts.Root == "" && flag.NArg() > 0 {
		opts.Root = flag.Arg(0)
	}
	return opts
}

// loadConfig layers the configuration file, ZETA_* variables and flags,
// in that order.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.NewDefaultConfig(".")
	if opts.ConfigFile != "" {
		loaded, err := config.LoadFile(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.LoadFromEnv()

	cfg.Update(func(c *config.Config) {
		if opts.Root != "" {
			c.Root = opts.Root
		}
		if opts.Codec != "" {
			c.Codec = opts.Codec
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupTelemetry(opts options, logger log.Logger) (telemetry.Telemetry, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.Output = os.Stderr
	tcfg.LoadFromEnv()
	if opts.Telemetry {
		tcfg.Enabled = true
	}
	if opts.MetricsAddr != "" {
		// -metrics-addr on its own exports to Prometheus only
		if !opts.Telemetry && !tcfg.Enabled {
			tcfg.Exporters = nil
		}
		tcfg.Enabled = true
		tcfg.MetricsAddr = opts.MetricsAddr
		if !tcfg.HasExporter(telemetry.ExporterPrometheus) {
			tcfg.Exporters = append(tcfg.Exporters, telemetry.ExporterPrometheus)
		}
	}

	tel, err := telemetry.New(tcfg)
	if err != nil {
		return nil, err
	}

	provider, ok := tel.(*telemetry.TelemetryProvider)
	if ok && tcfg.HasExporter(telemetry.ExporterPrometheus) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.MetricsHandler())
		server := &http.Server{Addr: tcfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
		logger.Info("Serving metrics on http://%s/metrics", tcfg.MetricsAddr)
	}
	return tel, nil
}

// importFile inserts every non-empty line of path and saves.
func importFile(sh *shell, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return importLines(sh, f)
}

func importLines(sh *shell, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := sh.eng.Insert(line); err != nil {
			return fmt.Errorf("line %d: %w", count+1, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if err := sh.eng.Save(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	fmt.Fprintf(sh.out, "Imported %d records into %d blocks\n", count, sh.eng.Len())
	return nil
}

// setupGracefulShutdown closes the database on SIGTERM. Readline handles
// interrupts itself.
func setupGracefulShutdown(sh *shell) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		sh.close()
		os.Exit(0)
	}()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/objbridge/bridge"
	"github.com/wippyai/objbridge/dispatch"
	"github.com/wippyai/objbridge/native/cabi"
	"github.com/wippyai/objbridge/native/sim"
	"github.com/wippyai/objbridge/native/wasmhost"
	"github.com/wippyai/objbridge/registry"
)

func main() {
	var (
		backend     = flag.String("backend", "sim", "Native backend: sim, wasm or cabi")
		libPath     = flag.String("lib", "", "Shared library for the cabi backend (default $"+cabi.EnvLibrary+")")
		memPages    = flag.Uint("pages", 0, "Guest memory limit in 64KiB pages for the wasm backend")
		verbose     = flag.Bool("v", false, "Development logging at debug level")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	setLoggers(logger)

	opts := options{
		backend: *backend,
		libPath: *libPath,
		pages:   uint32(*memPages),
		logger:  logger,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func setLoggers(l *zap.Logger) {
	bridge.SetLogger(l.Named("bridge"))
	dispatch.SetLogger(l.Named("dispatch"))
	registry.SetLogger(l.Named("registry"))
	sim.SetLogger(l.Named("sim"))
	wasmhost.SetLogger(l.Named("wasmhost"))
	cabi.SetLogger(l.Named("cabi"))
}

func run(opts options) error {
	ctx := context.Background()

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Backend: %s\n", s.backend)
	fmt.Printf("Module:  %s\n", demoModule)
	fmt.Printf("Types:   %d\n", len(s.types))

	fmt.Printf("\nProxies:\n")
	printProxies(s.proxies())

	fmt.Printf("\nSteps:\n")
	for _, st := range s.steps() {
		detail, err := st.run(ctx)
		if err != nil {
			fmt.Printf("  %-18s error: %v\n", st.name, err)
			continue
		}
		fmt.Printf("  %-18s %s\n", st.name, detail)
	}

	fmt.Printf("\nDispatch:\n")
	printStats(s.stats())
	if n := s.b.Dispatcher().FaultCount(); n > 0 {
		fmt.Printf("  faults: %d\n", n)
	}

	fmt.Printf("\nProxies after run:\n")
	printProxies(s.proxies())

	if err := s.close(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Printf("\nShut down: %d proxies left, %d modules\n", s.b.Table().Len(), len(s.b.Modules()))
	return nil
}

func printProxies(rows []proxyRow) {
	if len(rows) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, r := range rows {
		fmt.Printf("  #%-4d %-18s %-12s id=%-12s %s\n", r.serial, r.kind, r.typeName, r.id, r.state)
	}
}

func printStats(stats []dispatch.SlotStats) {
	if len(stats) == 0 {
		fmt.Println("  (no calls)")
		return
	}
	for _, st := range stats {
		fmt.Printf("  %-26s calls=%-4d misses=%-4d faults=%d\n", st.Slot, st.Calls, st.Misses, st.Faults)
	}
}

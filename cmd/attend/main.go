// attend - face-gated voice assistant.
// Listens when someone looks at the camera, answers out loud and serves a
// live dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-attend/internal/config"
	logging "github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/app"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults, .env and ATTEND_* env still apply)")
	logLevel := flag.String("log-level", "", "Log level override: debug, info, warn, error")
	logFile := flag.String("log-file", "attend.log", "Log file used while the TUI is shown")
	useTUI := flag.Bool("tui", false, "Show the terminal UI")
	probe := flag.String("probe", "", "Answer this text once without sensing, print the reply and exit")
	freeMode := flag.Bool("free", false, "Start in free mode (no face needed)")
	noWeb := flag.Bool("no-web", false, "Disable the dashboard")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *freeMode {
		cfg.Assistant.FreeMode = true
	}
	if *noWeb || *probe != "" {
		cfg.Web.Enabled = false
	}

	var out io.Writer = os.Stderr
	if *useTUI {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("❌ Log file: %v", err)
		}
		defer f.Close()
		out = f
	}
	logger := logging.Init(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		a.Shutdown()
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer a.Shutdown()

	if *probe != "" {
		probeCtx, stop := context.WithTimeout(ctx, 2*time.Minute)
		defer stop()
		reply, err := a.Probe(probeCtx, *probe)
		if err != nil {
			log.Printf("❌ Probe failed: %v", err)
			return
		}
		fmt.Println(reply)
		return
	}

	if err := a.Run(ctx, app.RunOptions{TUI: *useTUI}); err != nil {
		log.Printf("❌ Runtime error: %v", err)
	}
}

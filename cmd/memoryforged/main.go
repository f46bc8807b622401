// Command memoryforged is the memoryforge composition root. It wires
// configuration, logging, storage, and every memory-engine component
// together behind an Engine facade. It does not itself speak MCP, stdio,
// or any other tool-serving protocol, nor does it format output for a
// terminal — those are out-of-scope collaborators (spec.md §1's Non-goals)
// that would call into the Engine built here.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryforge/internal/config"
	"github.com/fyrsmithlabs/memoryforge/internal/logging"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ~/.memoryforge/config.yaml)")
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 && args[0] == "version" {
		printVersion()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("memoryforged: %v", err)
	}
}

func printVersion() {
	fmt.Printf("memoryforged\nVersion: %s\nCommit:  %s\n", version, gitCommit)
}

// run loads configuration, builds the Engine, and verifies an active
// project is resolvable before handing control to whatever out-of-process
// adapter embeds this binary's successor. With no server loop in scope, it
// exits cleanly once construction succeeds.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting memoryforged",
		zap.String("storage_path", cfg.StoragePath),
		zap.String("embedding_provider", string(cfg.EmbeddingProvider)))

	engine, err := NewEngine(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn(ctx, "error closing engine", zap.Error(err))
		}
	}()

	if _, err := engine.project.EnsureActiveProject(ctx); err != nil {
		logger.Warn(ctx, "no active project yet", zap.Error(err))
	}

	logger.Info(ctx, "memoryforged ready")
	return nil
}

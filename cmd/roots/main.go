package main

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	"github.com/Viktorfalkner/roots-product-helper/internal/github"
	"github.com/Viktorfalkner/roots-product-helper/internal/llm"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ____             _
  |  _ \ ___   ___ | |_ ___
  | |_) / _ \ / _ \| __/ __|
  |  _ < (_) | (_) | |_\__ \
  |_| \_\___/ \___/ \__|___/

  Product-planning assistant for Shortcut

  Usage: roots <command> [options]
         roots --help

  MCP server mode requires piped input.`)
}

// loadDotEnv loads <baseDir>/.env, then ./.env. Variables already set in the
// environment win. Missing files are ignored.
func loadDotEnv(baseDir string) error {
	for _, path := range []string{filepath.Join(baseDir, ".env"), ".env"} {
		if err := godotenv.Load(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	if err := loadDotEnv(baseDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout carries JSON output and the MCP protocol.
	logger := log.New(os.Stderr, "", log.LstdFlags)
	e := &env{
		store:     config.NewStore(baseDir),
		logger:    logger,
		shortcut:  shortcut.NewFromEnv(shortcut.WithLogger(logger)),
		repos:     github.NewFromEnv(),
		completer: llm.NewAnthropicCompleterFromEnv(),
	}

	args := os.Args
	// No args + piped stdin → MCP server
	if len(args) < 2 {
		args = append(args, "mcp")
	}

	if err := newCLIApp(e).Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

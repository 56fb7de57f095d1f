package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sushant-115/gojostm/config"
	"github.com/sushant-115/gojostm/core/kernels"
	"github.com/sushant-115/gojostm/pkg/logger"
)

var configPath = flag.String("config", "", "Path to the YAML configuration file")

func completer() *readline.PrefixCompleter {
	var names []readline.PrefixCompleterInterface
	for _, n := range kernels.Names() {
		names = append(names, readline.PcItem(n))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("run", names...),
		readline.PcItem("seq", names...),
		readline.PcItem("scan", names...),
		readline.PcItem("set",
			readline.PcItem("threads"),
			readline.PcItem("hash_bits"),
			readline.PcItem("prediction"),
			readline.PcItem("chunk"),
		),
		readline.PcItem("stats"),
		readline.PcItem("kernels"),
		readline.PcItem("config"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "gojostm_cli: %v\n", err)
			os.Exit(2)
		}
	}
	// Engine logs would interleave with the prompt.
	cfg.Logger.OutputFile = "stderr"
	cfg.Logger.Level = "warn"
	zlogger, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gojostm_cli: %v\n", err)
		os.Exit(1)
	}
	defer zlogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sh := newShell(cfg, zlogger, os.Stdout)

	if args := flag.Args(); len(args) > 0 {
		sh.processCommand(ctx, args)
		return
	}

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gojostm> ",
		HistoryFile:     filepath.Join(home, ".gojostm_history"),
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "gojostm_cli: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("gojostm CLI (interactive mode). Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fmt.Printf("Error reading input: %v\n", err)
			return
		}
		if sh.processCommand(ctx, strings.Fields(line)) {
			return
		}
	}
}

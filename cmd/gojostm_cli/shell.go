package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sushant-115/gojostm/config"
	"github.com/sushant-115/gojostm/core/kernels"
	"github.com/sushant-115/gojostm/internal/session"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// shell interprets the interactive commands.
type shell struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
	s      *session.Session
}

func newShell(cfg config.Config, logger *zap.Logger, out io.Writer) *shell {
	sh := &shell{cfg: cfg, logger: logger, out: out}
	sh.s = session.New(cfg, logger, nil, nil)
	return sh
}

func (sh *shell) printf(format string, args ...any) {
	fmt.Fprintf(sh.out, format, args...)
}

// parseRun reads "<kernel> [n] [threads] [chunk]".
func parseRun(args []string) (session.Request, error) {
	req := session.Request{Verify: true}
	if len(args) > 0 {
		req.Kernel = args[0]
	}
	nums := make([]uint64, 3)
	for i, a := range args[1:] {
		if i >= len(nums) {
			return req, fmt.Errorf("too many arguments")
		}
		v, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid number %q", a)
		}
		nums[i] = v
	}
	req.Params.N, req.Threads, req.Params.Chunk = nums[0], int(nums[1]), nums[2]
	return req, nil
}

func (sh *shell) run(ctx context.Context, req session.Request) {
	rep, err := sh.s.Run(ctx, req)
	if err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	sh.printf("%s\n", rep)
}

func (sh *shell) set(key, value string) error {
	cfg := sh.cfg
	switch key {
	case "threads":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.STM.Threads = v
	case "hash_bits":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return err
		}
		cfg.STM.HashBits = uint(v)
	case "prediction":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.STM.Prediction = v
	case "chunk":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Workload.Params.Chunk = v
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sh.cfg = cfg
	sh.s = session.New(cfg, sh.logger, nil, nil)
	return nil
}

// processCommand handles a single command line. It reports whether the
// shell should exit.
func (sh *shell) processCommand(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch strings.ToLower(args[0]) {
	case "run", "seq":
		req, err := parseRun(args[1:])
		if err != nil {
			sh.printf("Error: %v\n", err)
			return false
		}
		if strings.ToLower(args[0]) == "seq" {
			req.Mode = session.ModeSequential
		}
		sh.run(ctx, req)
	case "scan":
		if len(args) < 2 {
			sh.printf("Error: scan requires a kernel.\n")
			return false
		}
		for n := 1; n <= sh.cfg.STM.Threads; n++ {
			sh.run(ctx, session.Request{Kernel: args[1], Threads: n, Verify: true})
		}
	case "stats":
		rep, ok := sh.s.Last()
		if !ok {
			sh.printf("No run yet.\n")
			return false
		}
		sh.printf("%s\nrollback ratio: %.3f\n", rep, rep.Stats.RollbackRatio())
	case "kernels":
		sh.printf("%s\n", strings.Join(kernels.Names(), " "))
	case "config":
		data, err := yaml.Marshal(sh.cfg)
		if err != nil {
			sh.printf("Error: %v\n", err)
			return false
		}
		sh.printf("%s", data)
	case "set":
		if len(args) < 3 {
			sh.printf("Error: set requires a key and a value.\n")
			return false
		}
		if err := sh.set(args[1], args[2]); err != nil {
			sh.printf("Error: %v\n", err)
			return false
		}
		sh.printf("OK\n")
	case "help":
		sh.printf("Commands:\n")
		sh.printf("  run <kernel> [n] [threads] [chunk]\n")
		sh.printf("  seq <kernel> [n] [threads] [chunk]\n")
		sh.printf("  scan <kernel>\n")
		sh.printf("  stats\n")
		sh.printf("  kernels\n")
		sh.printf("  config\n")
		sh.printf("  set threads|hash_bits|prediction|chunk <value>\n")
		sh.printf("  help\n")
		sh.printf("  exit / quit\n")
	case "exit", "quit":
		return true
	default:
		sh.printf("Error: Unknown command. Type 'help' for a list of commands.\n")
	}
	return false
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sushant-115/gojostm/config"
	"github.com/sushant-115/gojostm/core/kernels"
	"github.com/sushant-115/gojostm/internal/session"
	"github.com/sushant-115/gojostm/pkg/logger"
)

var (
	kernelList = flag.String("kernels", strings.Join(kernels.Names(), ","), "Comma separated kernels to measure")
	maxThreads = flag.Int("max_threads", 4, "Measure 1..max_threads workers")
	iterations = flag.Uint64("n", 1<<18, "Loop iterations")
	chunk      = flag.Uint64("chunk", 64, "Iterations per transaction")
	reps       = flag.Int("reps", 3, "Repetitions per point; the fastest is reported")
	prediction = flag.Bool("prediction", true, "Predict induction variables")
)

func best(ctx context.Context, s *session.Session, req session.Request) (session.Report, error) {
	var out session.Report
	for i := 0; i < *reps; i++ {
		rep, err := s.Run(ctx, req)
		if err != nil {
			return rep, err
		}
		if i == 0 || rep.Duration < out.Duration {
			out = rep
		}
	}
	return out, nil
}

func main() {
	flag.Parse()

	cfg := config.Default()
	cfg.STM.Prediction = *prediction
	zlogger, err := logger.New(logger.Config{Level: "error"})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	s := session.New(cfg, zlogger, nil, nil)
	ctx := context.Background()

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "kernel\tthreads\ttime\tspeedup\tcommits\trollbacks\tconflicts\tpredictions")
	for _, name := range strings.Split(*kernelList, ",") {
		params := kernels.Params{N: *iterations, Chunk: *chunk}
		seq, err := best(ctx, s, session.Request{Kernel: name, Params: params, Threads: 1, Mode: session.ModeSequential, Verify: true})
		if err != nil {
			log.Fatalf("%s sequential: %v", name, err)
		}
		fmt.Fprintf(tw, "%s\tseq\t%s\t1.00\t-\t-\t-\t-\n", name, seq.Duration.Round(time.Microsecond))

		for n := 1; n <= *maxThreads; n++ {
			rep, err := best(ctx, s, session.Request{Kernel: name, Params: params, Threads: n, Verify: true})
			if err != nil {
				log.Fatalf("%s x%d: %v", name, n, err)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\t%d\t%d\t%d\t%d\n",
				name, n, rep.Duration.Round(time.Microsecond),
				float64(seq.Duration)/float64(rep.Duration),
				rep.Stats.Commits, rep.Stats.Rollbacks, rep.Stats.Conflicts, rep.Stats.Predictions,
			)
		}
	}
	tw.Flush()
}

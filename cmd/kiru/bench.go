package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jimzer/kiru"
	"github.com/jimzer/kiru/chunker"
	"github.com/jimzer/kiru/source"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type benchmarkResult struct {
	ElapsedSecs   float64 `json:"elapsed_secs"`
	NumChunks     int     `json:"num_chunks"`
	TotalBytes    int     `json:"total_bytes"`
	ThroughputMBs float64 `json:"throughput_mb_s"`
}

type benchmarkError struct {
	Error string `json:"error"`
}

var (
	benchStrategy   string
	benchSourceType string
	benchChunkSize  int
	benchOverlap    int
	benchBlockSize  int
)

var benchCMD = &cobra.Command{
	Use:   "bench <path|text>",
	Short: "Measure chunking throughput",
	Long:  "Drives a chunker over the given input to completion and prints a JSON throughput report.",
	Args:  cobra.ExactArgs(1),

	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := runBenchmark(cmd.Context(), args[0])
		if err != nil {
			msg, _ := json.Marshal(benchmarkError{Error: err.Error()})
			fmt.Fprintln(os.Stderr, string(msg))
			return err
		}

		out, err := json.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	benchCMD.Flags().StringVar(&benchStrategy, "strategy", "bytes", "chunking strategy: bytes or chars")
	benchCMD.Flags().StringVar(&benchSourceType, "source", "file", "input kind: string, file, glob, or http")
	benchCMD.Flags().IntVar(&benchChunkSize, "chunk-size", 512, "chunk size in bytes or characters")
	benchCMD.Flags().IntVar(&benchOverlap, "overlap", 64, "overlap between consecutive chunks")
	benchCMD.Flags().IntVar(&benchBlockSize, "block-size", chunker.DefaultBlockSize, "read block size for file inputs")
}

// builder abstracts over the two strategies so commands don't branch on
// the strategy past construction.
type builder interface {
	FromInput(ctx context.Context, in source.Input) (chunker.Iterator, error)
}

func buildChunker(strategy string, chunkSize int, overlap int, opts ...chunker.Option) (builder, error) {
	switch strategy {
	case "bytes":
		return kiru.ByBytes(chunkSize, overlap, opts...)
	case "chars", "characters":
		return kiru.ByCharacters(chunkSize, overlap, opts...)
	default:
		return nil, fmt.Errorf("invalid strategy %q, use \"bytes\" or \"chars\"", strategy)
	}
}

func buildSource(sourceType string, arg string) (source.Source, error) {
	switch sourceType {
	case "string", "text":
		return source.Text(arg), nil
	case "file":
		return source.File(arg), nil
	case "glob":
		dir, pattern := filepath.Split(arg)
		if dir == "" {
			dir = "."
		}
		return source.Glob(os.DirFS(dir), ".", pattern), nil
	case "http", "https":
		return source.HTTP(arg), nil
	default:
		return nil, fmt.Errorf("invalid source %q, use \"string\", \"file\", \"glob\", or \"http\"", sourceType)
	}
}

func runBenchmark(ctx context.Context, arg string) (*benchmarkResult, error) {
	b, err := buildChunker(benchStrategy, benchChunkSize, benchOverlap, chunker.WithBlockSize(benchBlockSize))
	if err != nil {
		return nil, err
	}

	src, err := buildSource(benchSourceType, arg)
	if err != nil {
		return nil, err
	}

	inputs, err := src.Resolve(ctx)
	if err != nil {
		return nil, errors.Join(errors.New("failed to resolve benchmark source"), err)
	}
	if len(inputs) == 0 {
		return nil, errors.New("source resolved to no inputs")
	}

	var numChunks, totalBytes atomic.Int64

	start := time.Now()
	group, groupCtx := errgroup.WithContext(ctx)
	for _, in := range inputs {
		group.Go(func() error {
			it, err := b.FromInput(groupCtx, in)
			if err != nil {
				return errors.Join(fmt.Errorf("failed to chunk %s", in.Path()), err)
			}
			defer it.Close()

			for it.Next() {
				numChunks.Add(1)
				totalBytes.Add(int64(len(it.Chunk())))
			}
			if err := it.Err(); err != nil {
				return errors.Join(fmt.Errorf("failed to chunk %s", in.Path()), err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Seconds()

	return &benchmarkResult{
		ElapsedSecs:   elapsed,
		NumChunks:     int(numChunks.Load()),
		TotalBytes:    int(totalBytes.Load()),
		ThroughputMBs: float64(totalBytes.Load()) / (1024.0 * 1024.0) / elapsed,
	}, nil
}

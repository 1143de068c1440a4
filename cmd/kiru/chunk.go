package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jimzer/kiru/chunker"
	"github.com/spf13/cobra"
)

type chunkRecord struct {
	Path    string `json:"path"`
	Ordinal int    `json:"ordinal"`
	Content string `json:"content"`
}

var (
	chunkStrategy   string
	chunkSourceType string
	chunkSize       int
	chunkOverlap    int
	chunkBlockSize  int
	chunkSkipErrors bool
)

var chunkCMD = &cobra.Command{
	Use:   "chunk <path|text>",
	Short: "Chunk an input and print the chunks",
	Long:  "Splits the given input into overlapping chunks and prints one JSON record per chunk.",
	Args:  cobra.ExactArgs(1),

	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []chunker.Option{chunker.WithBlockSize(chunkBlockSize)}
		if chunkSkipErrors {
			opts = append(opts, chunker.WithDecodePolicy(chunker.DecodeSkip))
		}

		b, err := buildChunker(chunkStrategy, chunkSize, chunkOverlap, opts...)
		if err != nil {
			return err
		}

		src, err := buildSource(chunkSourceType, args[0])
		if err != nil {
			return err
		}

		inputs, err := src.Resolve(cmd.Context())
		if err != nil {
			return errors.Join(errors.New("failed to resolve source"), err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, in := range inputs {
			it, err := b.FromInput(cmd.Context(), in)
			if err != nil {
				return errors.Join(fmt.Errorf("failed to chunk %s", in.Path()), err)
			}

			ordinal := 0
			for it.Next() {
				if err := enc.Encode(chunkRecord{Path: in.Path(), Ordinal: ordinal, Content: it.Chunk()}); err != nil {
					it.Close()
					return err
				}
				ordinal++
			}
			if err := it.Err(); err != nil {
				it.Close()
				return errors.Join(fmt.Errorf("failed to chunk %s", in.Path()), err)
			}
			it.Close()
		}

		return nil
	},
}

func init() {
	chunkCMD.Flags().StringVar(&chunkStrategy, "strategy", "bytes", "chunking strategy: bytes or chars")
	chunkCMD.Flags().StringVar(&chunkSourceType, "source", "file", "input kind: string, file, glob, or http")
	chunkCMD.Flags().IntVar(&chunkSize, "chunk-size", 512, "chunk size in bytes or characters")
	chunkCMD.Flags().IntVar(&chunkOverlap, "overlap", 64, "overlap between consecutive chunks")
	chunkCMD.Flags().IntVar(&chunkBlockSize, "block-size", chunker.DefaultBlockSize, "read block size for file inputs")
	chunkCMD.Flags().BoolVar(&chunkSkipErrors, "skip-decode-errors", false, "skip undecodable bytes instead of failing")
}

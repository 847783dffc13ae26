package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/trec"
)

var indexParallel int

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Index TREC SGML documents from files or directories",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("at least one collection file or directory must be given")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := collectionFiles(args)
		if err != nil {
			return err
		}
		router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
		if err != nil {
			return fmt.Errorf("creating shard router: %w", err)
		}
		defer router.Close()

		n, err := indexFiles(cmd.Context(), router, files, indexParallel)
		if err != nil {
			return err
		}
		if err := router.FlushAll(); err != nil {
			return fmt.Errorf("flushing shards: %w", err)
		}
		slog.Info("indexing complete", "files", len(files), "documents", n, "shards", router.NumShards())
		return nil
	},
}

func init() {
	indexCmd.Flags().IntVarP(&indexParallel, "parallel", "p", 4, "number of files parsed concurrently")
}

// collectionFiles expands directories into the regular files beneath them.
func collectionFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}
	return files, nil
}

func indexFiles(ctx context.Context, router *shard.Router, files []string, parallel int) (int64, error) {
	var indexed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for _, file := range files {
		g.Go(func() error {
			n := 0
			err := trec.ReadDocuments(file, func(doc trec.Document) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				_, engine := router.RouteDocument(doc.DocNo)
				if err := engine.IndexDocument(doc.DocNo, doc.Title, doc.Text); err != nil {
					return err
				}
				n++
				return nil
			})
			indexed.Add(int64(n))
			if err != nil {
				return err
			}
			slog.Info("file indexed", "file", file, "documents", n)
			return nil
		})
	}
	err := g.Wait()
	return indexed.Load(), err
}

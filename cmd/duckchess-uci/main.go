// Command duckchess-uci is the UCI protocol entry point for the
// DuckChess engine: it wires persisted engine defaults and an NNUE
// weight-blob cache (internal/storage) to the engine facade
// (internal/engine) and runs the stdin/stdout protocol loop
// (internal/uci).
package main

import (
	"bytes"
	"flag"
	"log"
	"os"

	"github.com/hailam/duckchess/internal/engine"
	"github.com/hailam/duckchess/internal/nnue"
	"github.com/hailam/duckchess/internal/storage"
	"github.com/hailam/duckchess/internal/uci"
)

var (
	hashMB   = flag.Int("hash", 0, "transposition table size in MB (default: persisted or 64)")
	evalFile = flag.String("evalfile", "", "path to an NNUE weight file (default: persisted, falls back to PST evaluator)")
	bookPath = flag.String("book", "", "path to a Polyglot opening book (default: persisted, none)")
)

func main() {
	flag.Parse()

	store, err := storage.NewStorage()
	if err != nil {
		log.Printf("persistent store unavailable, starting with built-in defaults: %v", err)
	}

	opts := storage.DefaultEngineOptions()
	if store != nil {
		opts, err = store.LoadEngineOptions()
		if err != nil {
			log.Printf("failed to load persisted engine options: %v", err)
			opts = storage.DefaultEngineOptions()
		}
	}

	if *hashMB > 0 {
		opts.HashMB = *hashMB
	}
	if *evalFile != "" {
		opts.EvalFile = *evalFile
	}
	if *bookPath != "" {
		opts.BookPath = *bookPath
	}

	eng := engine.NewEngine(opts.HashMB)

	if opts.BookPath != "" {
		if err := eng.LoadBook(opts.BookPath); err != nil {
			log.Printf("failed to load opening book from %s: %v", opts.BookPath, err)
		}
	}

	if opts.EvalFile != "" {
		if err := loadEvalFile(eng, store, opts.EvalFile); err != nil {
			log.Printf("NNUE weights not loaded, using PST evaluator: %v", err)
		}
	}

	if store != nil {
		if err := store.SaveEngineOptions(opts); err != nil {
			log.Printf("failed to persist engine options: %v", err)
		}
		defer store.Close()
	}

	protocol := uci.New(eng)
	protocol.Run()
}

// loadEvalFile loads NNUE weights from path, consulting store's cache
// by path and modification time so a repeated engine start against the
// same weight file skips the disk read.
func loadEvalFile(eng *engine.Engine, store *storage.Storage, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	modTime := info.ModTime().UnixNano()

	if store != nil {
		if cached, ok, err := store.LoadCachedWeights(path, modTime); err == nil && ok {
			ev, err := nnue.NewEvaluatorFromReader(bytes.NewReader(cached))
			if err == nil {
				eng.SetEvaluator(ev)
				return nil
			}
			log.Printf("cached NNUE weights for %s failed to parse, reloading from disk: %v", path, err)
		}
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ev, err := nnue.NewEvaluatorFromReader(bytes.NewReader(blob))
	if err != nil {
		return err
	}
	eng.SetEvaluator(ev)

	if store != nil {
		if err := store.CacheWeights(path, modTime, blob); err != nil {
			log.Printf("failed to cache NNUE weights for %s: %v", path, err)
		}
	}

	return nil
}

package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/duckchess/internal/board"
	"github.com/hailam/duckchess/internal/book"
	"github.com/hailam/duckchess/internal/nnue"
)

// SearchInfo contains information about the current search, reported
// once per completed depth.
type SearchInfo struct {
	Depth    int
	SelDepth int // Deepest ply reached, including quiescence
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
}

// SearchLimits specifies constraints on a fixed-depth/fixed-time search.
type SearchLimits struct {
	Depth    int           // Maximum depth (0 = no limit)
	Nodes    uint64        // Maximum nodes (0 = no limit)
	MoveTime time.Duration // Time for this move (0 = no limit)
	Infinite bool          // Search until stopped
}

// Difficulty represents the engine's playing strength tier.
type Difficulty int

const (
	Easy   Difficulty = iota // ~2-3 ply, 500ms
	Medium                   // ~7 ply, 2s
	Hard                     // Maximum strength, 10s
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 7, MoveTime: 2 * time.Second},
	Hard:   {Depth: 40, MoveTime: 10 * time.Second},
}

// Engine is the chess engine facade: a single searcher, a transposition
// table, an opening book, and the evaluator currently in use (NNUE
// network or PST fallback). DuckChess runs exactly one searcher — no
// Lazy-SMP, no worker pool.
type Engine struct {
	tt       *TranspositionTable
	searcher *Searcher

	evaluator nnue.PositionEvaluator
	useNNUE   bool

	difficulty Difficulty
	book       *book.Book

	rootPosHashes []uint64

	// OnInfo is called after every completed depth, if set.
	OnInfo func(SearchInfo)

	// group/cancel track the single in-flight background search
	// goroutine, bounded by an errgroup against the goroutine polling
	// for "stop".
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewEngine creates a new chess engine with the given transposition
// table size in MB. The evaluator starts as the PST fallback; call
// SetEvalFile to switch to NNUE once a weight file is available.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	evaluator := nnue.NewPSTEvaluator()

	e := &Engine{
		tt:         tt,
		evaluator:  evaluator,
		difficulty: Medium,
	}
	e.searcher = NewSearcher(tt, evaluator)

	return e
}

// SetDifficulty sets the engine difficulty used by Search.
func (e *Engine) SetDifficulty(d Difficulty) {
	e.difficulty = d
}

// LoadBook loads an opening book from a Polyglot file.
func (e *Engine) LoadBook(filename string) error {
	b, err := book.LoadPolyglot(filename)
	if err != nil {
		return err
	}
	e.book = b
	return nil
}

// SetBook sets the opening book directly.
func (e *Engine) SetBook(b *book.Book) {
	e.book = b
}

// HasBook returns true if an opening book is loaded.
func (e *Engine) HasBook() bool {
	return e.book != nil
}

// SetEvalFile loads NNUE weights from path and switches the searcher to
// the NNUE evaluator. On failure the engine keeps whatever evaluator it
// was already using and the error is returned for the caller (UCI
// front-end) to report.
func (e *Engine) SetEvalFile(path string) error {
	ev, err := nnue.NewEvaluator(path)
	if err != nil {
		return fmt.Errorf("load NNUE weights from %q: %w", path, err)
	}
	e.SetEvaluator(ev)
	return nil
}

// SetEvaluator installs a pre-built evaluator directly. The CLI entry
// point uses this when it has already resolved an NNUE network through
// the storage weight-blob cache, so the engine itself never needs to
// know about the cache.
func (e *Engine) SetEvaluator(ev nnue.PositionEvaluator) {
	e.evaluator = ev
	_, e.useNNUE = ev.(*nnue.Evaluator)
	e.searcher.SetEvaluator(ev)
}

// ClearEvalFile reverts to the PST fallback evaluator.
func (e *Engine) ClearEvalFile() {
	e.evaluator = nnue.NewPSTEvaluator()
	e.useNNUE = false
	e.searcher.SetEvaluator(e.evaluator)
}

// UseNNUE returns whether NNUE evaluation is currently active.
func (e *Engine) UseNNUE() bool {
	return e.useNNUE
}

// SetPositionHistory sets the position history for repetition detection.
// This should be called before a search with hashes from the game's
// move history so far.
func (e *Engine) SetPositionHistory(hashes []uint64) {
	e.rootPosHashes = make([]uint64, len(hashes))
	copy(e.rootPosHashes, hashes)
	e.searcher.SetRootHistory(hashes)
}

// Search finds the best move for pos using the engine's difficulty
// setting.
func (e *Engine) Search(pos *board.Position) board.Move {
	limits := DifficultySettings[e.difficulty]
	uciLimits := UCILimits{
		Depth:    limits.Depth,
		Nodes:    limits.Nodes,
		MoveTime: limits.MoveTime,
		Infinite: limits.Infinite,
	}
	move, _ := e.SearchWithUCILimits(pos, uciLimits, 0)
	return move
}

// SearchWithLimits finds the best move with fixed search limits (depth,
// node count, or a flat per-move time budget).
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	uciLimits := UCILimits{
		Depth:    limits.Depth,
		Nodes:    limits.Nodes,
		MoveTime: limits.MoveTime,
		Infinite: limits.Infinite,
	}
	move, _ := e.SearchWithUCILimits(pos, uciLimits, 0)
	return move
}

// SearchWithUCILimits finds the best move using UCI time controls
// (wtime/btime/winc/binc), consulting the opening book first. ply is
// the current game ply, used by the time manager's move-budget
// heuristic.
func (e *Engine) SearchWithUCILimits(pos *board.Position, limits UCILimits, ply int) (board.Move, int) {
	if e.book != nil {
		if move, ok := e.book.Probe(pos); ok {
			return move, 0
		}
	}

	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)

	e.tt.NewSearch()

	return e.searcher.IterativeDeepening(pos, limits, tm, ReporterFunc(func(info SearchInfo) {
		if e.OnInfo != nil {
			e.OnInfo(info)
		}
	}))
}

// GoInfinite runs the search in the background until Stop is called,
// delivering progress through e.OnInfo and the final move through
// resultCh. Only one background search may be in flight at a time; a
// second call before the first completes returns an error.
func (e *Engine) GoInfinite(pos *board.Position, limits UCILimits, ply int, resultCh chan<- board.Move) error {
	if e.group != nil {
		return fmt.Errorf("search already in progress")
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	e.group = g
	e.cancel = cancel

	g.Go(func() error {
		move, _ := e.SearchWithUCILimits(pos, limits, ply)
		// A search that ends on its own releases the stop-polling
		// goroutine too, so the group can finish and be cleared.
		cancel()
		resultCh <- move
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	go func() {
		_ = g.Wait()
		e.group = nil
		e.cancel = nil
	}()

	return nil
}

// Stop stops the current search, whether run synchronously or via
// GoInfinite.
func (e *Engine) Stop() {
	e.searcher.Stop()
	if e.cancel != nil {
		e.cancel()
	}
}

// Clear clears the transposition table and move-ordering state for a
// new game.
func (e *Engine) Clear() {
	e.tt.Clear()
	e.searcher.Reset()
}

// Perft performs a perft test (for debugging move generation).
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}

	return nodes
}

// Evaluate returns the static evaluation of a position under the
// engine's currently active evaluator (NNUE or PST).
func (e *Engine) Evaluate(pos *board.Position) int {
	e.evaluator.Reset()
	e.evaluator.Refresh(pos)
	return e.evaluator.Evaluate(pos)
}

// Nodes returns the number of nodes searched in the most recent search.
func (e *Engine) Nodes() uint64 {
	return e.searcher.Nodes()
}

// ResizeHash rebuilds the transposition table at the given size in MB.
func (e *Engine) ResizeHash(sizeMB int) {
	e.tt = NewTranspositionTable(sizeMB)
	e.searcher.SetTranspositionTable(e.tt)
	log.Printf("hash table resized to %d MB", sizeMB)
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateScore - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateScore + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100

	return sign + itoa(pawns) + "." + itoa(centipawns)
}

// itoa is a tiny integer-to-string helper used by ScoreToString.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}

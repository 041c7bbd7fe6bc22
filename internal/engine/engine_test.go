package engine

import (
	"testing"
	"time"

	"github.com/hailam/duckchess/internal/board"
)

func TestSearchBasic(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)
	eng.SetDifficulty(Easy)

	move := eng.Search(pos)
	if move == board.NoMove {
		t.Error("Search returned NoMove for starting position")
	}
	t.Logf("Best move: %s", move.String())
}

func TestSearchWithLimitsMultiplePositions(t *testing.T) {
	eng := NewEngine(16)

	positions := []string{
		board.StartFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3", // Italian Game
		"8/8/8/4k3/8/4K3/4P3/8 w - - 0 1",                                  // KP endgame
	}

	for i, fen := range positions {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("Failed to parse position %d: %v", i, err)
		}

		limits := SearchLimits{
			Depth:    5,
			MoveTime: 300 * time.Millisecond,
		}

		move := eng.SearchWithLimits(pos, limits)
		if move == board.NoMove {
			// Only error unless the side to move is checkmated.
			if !pos.InCheck() || pos.GenerateLegalMoves().Len() > 0 {
				t.Errorf("Position %d: Search returned NoMove", i)
			}
		} else {
			t.Logf("Position %d: best move = %s", i, move.String())
		}
	}
}

func TestSearchReportsInfo(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	var lastDepth int
	eng.OnInfo = func(info SearchInfo) {
		lastDepth = info.Depth
	}

	eng.SearchWithLimits(pos, SearchLimits{Depth: 4, MoveTime: time.Second})
	if lastDepth == 0 {
		t.Error("OnInfo callback was never invoked")
	}
}

func TestGoInfiniteRejectsConcurrentSearch(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	resultCh := make(chan board.Move, 1)
	limits := UCILimits{Infinite: true}
	if err := eng.GoInfinite(pos, limits, 0, resultCh); err != nil {
		t.Fatalf("GoInfinite returned error: %v", err)
	}

	if err := eng.GoInfinite(pos, limits, 0, resultCh); err == nil {
		t.Error("expected error from a second GoInfinite while one is in flight")
	}

	eng.Stop()

	select {
	case move := <-resultCh:
		if move == board.NoMove {
			t.Error("stopped search returned NoMove for starting position")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("search did not stop in time")
	}
}

func TestGoInfiniteThenStopAllowsReuse(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)
	resultCh := make(chan board.Move, 1)

	if err := eng.GoInfinite(pos, UCILimits{Depth: 3}, 0, resultCh); err != nil {
		t.Fatalf("first GoInfinite returned error: %v", err)
	}
	eng.Stop()
	<-resultCh

	// Give the background goroutine a moment to clear e.group before the
	// next call.
	time.Sleep(20 * time.Millisecond)

	if err := eng.GoInfinite(pos, UCILimits{Depth: 3}, 0, resultCh); err != nil {
		t.Fatalf("GoInfinite after stop returned error: %v", err)
	}
	eng.Stop()
	<-resultCh
}

func TestPerftStartingPosition(t *testing.T) {
	eng := NewEngine(16)
	pos := board.NewPosition()

	cases := []struct {
		depth int
		want  uint64
	}{
		{1, 20},
		{2, 400},
		{3, 8902},
	}

	for _, c := range cases {
		got := eng.Perft(pos, c.depth)
		if got != c.want {
			t.Errorf("Perft(%d) = %d, want %d", c.depth, got, c.want)
		}
	}
}

func TestEvaluateNearZeroAtStart(t *testing.T) {
	eng := NewEngine(16)
	pos := board.NewPosition()

	// The starting position is symmetric; PST evaluation should stay
	// small even if not exactly zero.
	score := eng.Evaluate(pos)
	if score < -100 || score > 100 {
		t.Errorf("expected near-zero eval for starting position, got %d", score)
	}
}

func TestResizeHash(t *testing.T) {
	eng := NewEngine(1)
	pos := board.NewPosition()

	eng.SearchWithLimits(pos, SearchLimits{Depth: 4, MoveTime: time.Second})
	eng.ResizeHash(4)

	move := eng.SearchWithLimits(pos, SearchLimits{Depth: 3, MoveTime: time.Second})
	if move == board.NoMove {
		t.Error("search after ResizeHash returned NoMove")
	}
}

func TestSetAndClearEvalFile(t *testing.T) {
	eng := NewEngine(16)
	if eng.UseNNUE() {
		t.Error("engine should start on the PST evaluator, not NNUE")
	}

	if err := eng.SetEvalFile("nonexistent-weights.bin"); err == nil {
		t.Error("expected error loading a nonexistent eval file")
	}
	if eng.UseNNUE() {
		t.Error("a failed SetEvalFile must not flip UseNNUE")
	}

	eng.ClearEvalFile()
	if eng.UseNNUE() {
		t.Error("ClearEvalFile must leave the engine on the PST evaluator")
	}
}

func TestClearResetsSearchState(t *testing.T) {
	eng := NewEngine(16)
	pos := board.NewPosition()

	eng.SearchWithLimits(pos, SearchLimits{Depth: 4, MoveTime: time.Second})
	if eng.Nodes() == 0 {
		t.Fatal("expected search to report nonzero nodes before Clear")
	}

	eng.Clear()
	if eng.Nodes() != 0 {
		t.Errorf("expected Clear to reset the node count, got %d", eng.Nodes())
	}
	move := eng.SearchWithLimits(pos, SearchLimits{Depth: 3, MoveTime: time.Second})
	if move == board.NoMove {
		t.Error("search after Clear returned NoMove")
	}
}

func TestScoreToString(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, "0.0"},
		{100, "1.0"},
		{-250, "-2.50"},
	}

	for _, c := range cases {
		if got := ScoreToString(c.score); got != c.want {
			t.Errorf("ScoreToString(%d) = %q, want %q", c.score, got, c.want)
		}
	}

	got := ScoreToString(MateScore - 3)
	if got != "Mate in 2" {
		t.Errorf("ScoreToString(mate) = %q, want %q", got, "Mate in 2")
	}
}

package nnue

import (
	"bytes"
	"os"
	"testing"

	"github.com/hailam/duckchess/internal/board"
)

func TestFeatureIndexRange(t *testing.T) {
	pos := board.NewPosition()

	white, black := GetActiveFeatures(pos)
	if len(white) != 32 || len(black) != 32 {
		t.Fatalf("expected 32 active features per perspective at the start, got white=%d black=%d", len(white), len(black))
	}

	for _, idx := range append(white, black...) {
		if idx < 0 || idx >= FeatureSize {
			t.Errorf("feature index %d out of range [0, %d)", idx, FeatureSize)
		}
	}
}

func TestFeatureIndexFriendlyVsEnemy(t *testing.T) {
	// A white pawn on e2, seen from White's perspective, must land in the
	// friendly half (kind < 6); seen from Black's perspective it must
	// land in the enemy half (kind >= 6).
	idxWhite := featureIndex(board.White, board.E2, board.White, board.Pawn)
	idxBlack := featureIndex(board.Black, board.E2, board.White, board.Pawn)

	if idxWhite%NumPieceKinds >= 6 {
		t.Errorf("expected friendly-half feature for own perspective, got kind %d", idxWhite%NumPieceKinds)
	}
	if idxBlack%NumPieceKinds < 6 {
		t.Errorf("expected enemy-half feature for opposing perspective, got kind %d", idxBlack%NumPieceKinds)
	}
}

func TestGetChangedFeaturesQuietMove(t *testing.T) {
	pos := board.NewPosition()
	move := board.NewMove(board.E2, board.E4)
	undo := pos.MakeMove(move)
	defer pos.UnmakeMove(move, undo)

	whiteAdd, whiteRem, blackAdd, blackRem := GetChangedFeatures(pos, move, board.NoPiece)
	if len(whiteAdd) != 1 || len(whiteRem) != 1 {
		t.Errorf("quiet move should touch exactly one feature per perspective, got add=%d rem=%d", len(whiteAdd), len(whiteRem))
	}
	if len(blackAdd) != 1 || len(blackRem) != 1 {
		t.Errorf("quiet move should touch exactly one feature per perspective, got add=%d rem=%d", len(blackAdd), len(blackRem))
	}
}

func TestWeightsRoundTripThroughReader(t *testing.T) {
	net := NewNetwork()
	net.InitRandom(42)

	path := t.TempDir() + "/weights.bin"
	if err := net.SaveWeights(path); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	loaded := NewNetwork()
	if err := loaded.LoadWeightsFromReader(bytes.NewReader(blob)); err != nil {
		t.Fatalf("LoadWeightsFromReader failed: %v", err)
	}

	if loaded.L1Bias != net.L1Bias {
		t.Errorf("L1 bias mismatch after round trip")
	}
	if loaded.OutputBias != net.OutputBias {
		t.Errorf("output bias mismatch after round trip")
	}
}

func TestLoadWeightsFromReaderRejectsBadMagic(t *testing.T) {
	net := NewNetwork()
	garbage := bytes.Repeat([]byte{0xFF}, 16)
	if err := net.LoadWeightsFromReader(bytes.NewReader(garbage)); err == nil {
		t.Error("expected an error loading a buffer with an invalid magic number")
	}
}

func TestPSTEvaluatorNearZeroAtStart(t *testing.T) {
	pos := board.NewPosition()
	e := NewPSTEvaluator()
	e.Refresh(pos)

	score := e.Evaluate(pos)
	if score < -50 || score > 50 {
		t.Errorf("expected a near-zero PST score for the symmetric starting position, got %d", score)
	}
}

func TestPSTEvaluatorFavorsMaterial(t *testing.T) {
	// White has all its pieces against a lone king; the evaluator must
	// clearly favor White.
	pos, err := board.ParseFEN("4k3/8/8/8/8/8/8/RNBQKBNR w KQ - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN failed: %v", err)
	}
	e := NewPSTEvaluator()
	e.Refresh(pos)

	if score := e.Evaluate(pos); score < 500 {
		t.Errorf("expected a strongly positive score for a huge material edge, got %d", score)
	}
}

func TestEvaluatorIncrementalMatchesRefresh(t *testing.T) {
	net := NewNetwork()
	net.InitRandom(7)

	pos := board.NewPosition()
	ev := &Evaluator{net: net, stack: NewAccumulatorStack()}
	ev.Refresh(pos)
	before := ev.Evaluate(pos)

	move := board.NewMove(board.E2, board.E4)
	ev.Push()
	undo := pos.MakeMove(move)
	ev.Update(pos, move, board.NoPiece)
	afterIncremental := ev.Evaluate(pos)

	ev2 := &Evaluator{net: net, stack: NewAccumulatorStack()}
	ev2.Refresh(pos)
	afterRefresh := ev2.Evaluate(pos)

	if afterIncremental != afterRefresh {
		t.Errorf("incremental update diverged from a full refresh: %d != %d", afterIncremental, afterRefresh)
	}

	pos.UnmakeMove(move, undo)
	ev.Pop()
	if got := ev.Evaluate(pos); got != before {
		t.Errorf("Pop did not restore the pre-move evaluation: got %d, want %d", got, before)
	}
}

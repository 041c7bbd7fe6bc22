package engine

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/hailam/duckchess/internal/board"
	"github.com/hailam/duckchess/internal/nnue"
)

// Search constants
const (
	Infinity  = 30000
	MateScore = 29000
	MaxPly    = 128
)

// lmrReductions is a precomputed late-move-reduction table built in init()
// from the formula floor(0.75 + ln(depth)*ln(moveIndex)/2.25).
var lmrReductions [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			r := 0.75 + math.Log(float64(d))*math.Log(float64(m))/2.25
			if r < 0 {
				r = 0
			}
			lmrReductions[d][m] = int(r)
		}
	}
}

// futilityMargin is the static-eval margin used for frontier futility
// pruning, indexed by remaining depth (0 unused).
var futilityMargin = [3]int{0, 200, 300}

// lmpThreshold bounds how many quiet moves are tried at low depth before
// late move pruning kicks in, indexed by remaining depth (0 unused).
var lmpThreshold = [8]int{0, 4, 6, 9, 13, 18, 24, 31}

// Reporter receives progress reports during a search. The UCI front end
// implements it to emit "info" lines; tests can use a no-op stub.
type Reporter interface {
	OnInfo(SearchInfo)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(SearchInfo)

// OnInfo implements Reporter.
func (f ReporterFunc) OnInfo(info SearchInfo) { f(info) }

// Clock answers how much time a search has used and whether it must stop.
// TimeManager implements it; it is abstracted so the searcher does not
// depend on wall-clock time directly.
type Clock interface {
	Elapsed() time.Duration
	ShouldStop() bool
	PastOptimum() bool
}

// PVTable stores the principal variation found at each ply.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

// Searcher performs a single-threaded iterative-deepening alpha-beta
// search. There is exactly one Searcher per Engine: DuckChess does not
// implement Lazy-SMP or any other form of multi-threaded search.
type Searcher struct {
	pos       *board.Position
	tt        *TranspositionTable
	orderer   *MoveOrderer
	evaluator nnue.PositionEvaluator

	nodes    uint64
	stopFlag atomic.Bool
	selDepth int

	pv        PVTable
	undoStack [MaxPly]board.UndoInfo
	evalStack [MaxPly]int

	posHistory    [768]uint64
	posHistoryLen int
	rootPosHashes []uint64
}

// NewSearcher creates a new searcher using the given transposition table
// and position evaluator (NNUE network or PST fallback).
func NewSearcher(tt *TranspositionTable, evaluator nnue.PositionEvaluator) *Searcher {
	return &Searcher{
		tt:        tt,
		orderer:   NewMoveOrderer(),
		evaluator: evaluator,
	}
}

// SetEvaluator swaps the position evaluator (used when EvalFile is set
// or cleared via setoption).
func (s *Searcher) SetEvaluator(evaluator nnue.PositionEvaluator) {
	s.evaluator = evaluator
}

// SetTranspositionTable swaps the transposition table (used when Hash
// is resized via setoption).
func (s *Searcher) SetTranspositionTable(tt *TranspositionTable) {
	s.tt = tt
}

// Stop signals the search to stop as soon as it next polls the flag.
func (s *Searcher) Stop() {
	s.stopFlag.Store(true)
}

// Reset prepares the searcher for a new search.
func (s *Searcher) Reset() {
	s.stopFlag.Store(false)
	s.nodes = 0
	s.selDepth = 0
	s.orderer.Clear()
}

// Nodes returns the number of nodes searched so far.
func (s *Searcher) Nodes() uint64 {
	return s.nodes
}

// SelDepth returns the deepest ply reached so far this search, including
// quiescence search, for the UCI "seldepth" info field.
func (s *Searcher) SelDepth() int {
	return s.selDepth
}

// SetRootHistory sets the game's position history, used for repetition
// detection during search.
func (s *Searcher) SetRootHistory(hashes []uint64) {
	s.rootPosHashes = make([]uint64, len(hashes))
	copy(s.rootPosHashes, hashes)
}

// GetPV returns the principal variation from the most recent search.
func (s *Searcher) GetPV() []board.Move {
	pv := make([]board.Move, s.pv.length[0])
	copy(pv, s.pv.moves[0][:s.pv.length[0]])
	return pv
}

func (s *Searcher) initHistory(pos *board.Position) {
	n := len(s.rootPosHashes)
	if n > len(s.posHistory)-1 {
		n = len(s.posHistory) - 1
	}
	copy(s.posHistory[:n], s.rootPosHashes[len(s.rootPosHashes)-n:])
	s.posHistory[n] = pos.Hash
	s.posHistoryLen = n + 1
}

// IterativeDeepening searches pos with increasing depth until limits,
// clock or an explicit Stop() call ends the search, reporting progress
// through reporter after every completed depth.
func (s *Searcher) IterativeDeepening(pos *board.Position, limits UCILimits, clock Clock, reporter Reporter) (board.Move, int) {
	s.pos = pos.Copy()
	s.Reset()
	s.initHistory(s.pos)
	s.evaluator.Reset()
	s.evaluator.Refresh(s.pos)

	maxDepth := MaxPly - 1
	if limits.Depth > 0 && limits.Depth < maxDepth {
		maxDepth = limits.Depth
	}

	var bestMove board.Move
	var bestScore int
	var prevScore int
	startTime := time.Now()

	for depth := 1; depth <= maxDepth; depth++ {
		if s.stopFlag.Load() {
			break
		}

		var move board.Move
		var score int

		if depth <= 4 || prevScore == 0 {
			score = s.negamax(depth, 0, -Infinity, Infinity, board.NoMove, false)
			move = s.rootBestMove()
		} else {
			window := 25
			alpha := prevScore - window
			beta := prevScore + window
			for {
				score = s.negamax(depth, 0, alpha, beta, board.NoMove, false)
				move = s.rootBestMove()
				if s.stopFlag.Load() {
					break
				}
				if score <= alpha {
					alpha -= window
					window *= 2
				} else if score >= beta {
					beta += window
					window *= 2
				} else {
					break
				}
			}
		}

		if s.stopFlag.Load() && depth > 1 {
			break
		}

		if move != board.NoMove {
			bestMove = move
			bestScore = score
		}
		prevScore = score

		if reporter != nil {
			reporter.OnInfo(SearchInfo{
				Depth:    depth,
				SelDepth: s.selDepth,
				Score:    bestScore,
				Nodes:    s.nodes,
				Time:     time.Since(startTime),
				PV:       s.GetPV(),
				HashFull: s.tt.HashFull(),
			})
		}

		if bestScore > MateScore-MaxPly || bestScore < -MateScore+MaxPly {
			break
		}

		if limits.Nodes > 0 && s.nodes >= limits.Nodes {
			break
		}

		if clock != nil {
			if clock.ShouldStop() {
				break
			}
			if clock.PastOptimum() && depth >= 4 {
				break
			}
		}
	}

	if bestMove == board.NoMove {
		if moves := s.pos.GenerateLegalMoves(); moves.Len() > 0 {
			bestMove = moves.Get(0)
		}
	}

	return bestMove, bestScore
}

func (s *Searcher) rootBestMove() board.Move {
	if s.pv.length[0] > 0 {
		return s.pv.moves[0][0]
	}
	return board.NoMove
}

// negamax implements the negamax algorithm with alpha-beta pruning, PVS,
// null-move reduction, late move reductions and late move/futility
// pruning.
func (s *Searcher) negamax(depth, ply int, alpha, beta int, prevMove board.Move, cutNode bool) int {
	if s.nodes&4095 == 0 && s.stopFlag.Load() {
		return 0
	}
	s.nodes++
	if ply > s.selDepth {
		s.selDepth = ply
	}

	s.pv.length[ply] = ply

	if ply > 0 {
		if s.isDraw() {
			return 0
		}

		// Mate distance pruning.
		alpha = max(alpha, -MateScore+ply)
		beta = min(beta, MateScore-ply-1)
		if alpha >= beta {
			return alpha
		}
	}

	var ttMove board.Move
	ttEntry, found := s.tt.Probe(s.pos.Hash)
	if found {
		ttMove = ttEntry.BestMove
		if int(ttEntry.Depth) >= depth {
			score := AdjustScoreFromTT(int(ttEntry.Score), ply)
			switch ttEntry.Flag {
			case TTExact:
				if ply == 0 && ttMove != board.NoMove {
					s.pv.moves[0][0] = ttMove
					s.pv.length[0] = 1
				}
				return score
			case TTLowerBound:
				alpha = max(alpha, score)
			case TTUpperBound:
				beta = min(beta, score)
			}
			if alpha >= beta {
				return score
			}
		}
	}

	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}

	if ply >= MaxPly-1 {
		return s.evaluator.Evaluate(s.pos)
	}

	inCheck := s.pos.InCheck()

	extension := 0
	if inCheck {
		extension = 1
	}

	staticEval := s.evaluator.Evaluate(s.pos)
	s.evalStack[ply] = staticEval

	improving := false
	if ply >= 2 && !inCheck {
		improving = staticEval > s.evalStack[ply-2]
	}

	// Frontier futility pruning: if the static eval plus a depth-scaled
	// margin still cannot reach alpha, only consider captures/promotions.
	pruneQuiets := false
	if !inCheck && depth <= 2 && depth < len(futilityMargin) {
		if staticEval+futilityMargin[depth] <= alpha {
			pruneQuiets = true
		}
	}

	// Null move pruning.
	if !inCheck && depth >= 3 && ply > 0 && s.pos.HasNonPawnMaterial() {
		r := 2 + depth/6
		nullUndo := s.pos.MakeNullMove()
		nullScore := -s.negamax(depth-1-r, ply+1, -beta, -beta+1, board.NoMove, !cutNode)
		s.pos.UnmakeNullMove(nullUndo)
		if s.stopFlag.Load() {
			return 0
		}
		if nullScore >= beta {
			return nullScore
		}
	}

	moves := s.pos.GenerateLegalMoves()
	if moves.Len() == 0 {
		if inCheck {
			return -MateScore + ply
		}
		return 0
	}

	scores := s.orderer.ScoreMoves(s.pos, moves, ply, ttMove)

	bestScore := -Infinity
	bestMove := board.NoMove
	flag := TTUpperBound
	movesSearched := 0

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		isCapture := move.IsCapture(s.pos)
		isPromotion := move.IsPromotion()
		isQuiet := !isCapture && !isPromotion

		if pruneQuiets && isQuiet && movesSearched > 0 {
			continue
		}

		// Late move pruning: skip quiet moves late in the list at low depth.
		if depth <= 7 && !inCheck && isQuiet && movesSearched > 0 && move != ttMove {
			threshold := lmpThreshold[depth]
			if !improving {
				threshold = threshold * 2 / 3
			}
			if movesSearched >= threshold {
				continue
			}
		}

		movedIsKing := s.pos.PieceAt(move.From()).Type() == board.King
		s.undoStack[ply] = s.pos.MakeMove(move)
		if !s.undoStack[ply].Valid {
			s.pos.UnmakeMove(move, s.undoStack[ply])
			continue
		}
		s.evaluator.Push()
		if movedIsKing || move.IsCastling() {
			s.evaluator.Refresh(s.pos)
		} else {
			captured := capturedPieceFor(s.undoStack[ply])
			s.evaluator.Update(s.pos, move, captured)
		}

		s.posHistory[s.posHistoryLen] = s.pos.Hash
		s.posHistoryLen++
		movesSearched++

		newDepth := depth - 1 + extension

		var score int
		if movesSearched > 4 && depth >= 3 && !inCheck && isQuiet {
			d := min(depth, 63)
			m := min(movesSearched, 63)
			reduction := lmrReductions[d][m]
			if !improving {
				reduction++
			}
			if cutNode {
				reduction++
			}
			reducedDepth := max(newDepth-reduction, 1)

			score = -s.negamax(reducedDepth, ply+1, -alpha-1, -alpha, move, !cutNode)
			if score > alpha {
				score = -s.negamax(newDepth, ply+1, -beta, -alpha, move, false)
			}
		} else if movesSearched == 1 {
			score = -s.negamax(newDepth, ply+1, -beta, -alpha, move, false)
		} else {
			score = -s.negamax(newDepth, ply+1, -alpha-1, -alpha, move, !cutNode)
			if score > alpha && score < beta {
				score = -s.negamax(newDepth, ply+1, -beta, -alpha, move, false)
			}
		}

		s.posHistoryLen--
		s.pos.UnmakeMove(move, s.undoStack[ply])
		s.evaluator.Pop()

		if s.stopFlag.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = move

			if score > alpha {
				alpha = score
				flag = TTExact

				s.pv.moves[ply][ply] = move
				for j := ply + 1; j < s.pv.length[ply+1]; j++ {
					s.pv.moves[ply][j] = s.pv.moves[ply+1][j]
				}
				s.pv.length[ply] = s.pv.length[ply+1]
			}
		}

		if score >= beta {
			s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, bestMove)

			if isQuiet {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(move, depth, true)
			}

			if ply == 0 && bestMove != board.NoMove {
				s.pv.moves[0][0] = bestMove
				s.pv.length[0] = 1
			}

			return score
		}
	}

	s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), flag, bestMove)

	return bestScore
}

// capturedPieceFor recovers the captured piece (if any) from an UndoInfo
// so the evaluator's incremental update knows which feature to remove.
func capturedPieceFor(undo board.UndoInfo) board.Piece {
	return undo.CapturedPiece
}

// quiescence searches only captures (and, if in check, all evasions) to
// avoid the horizon effect.
func (s *Searcher) quiescence(ply int, alpha, beta int) int {
	const maxQuiescencePly = 32
	if ply >= MaxPly || ply > maxQuiescencePly {
		return s.evaluator.Evaluate(s.pos)
	}

	if s.stopFlag.Load() {
		return 0
	}
	s.nodes++
	if ply > s.selDepth {
		s.selDepth = ply
	}

	inCheck := s.pos.InCheck()

	var standPat int
	if !inCheck {
		standPat = s.evaluator.Evaluate(s.pos)
		if standPat >= beta {
			return beta
		}
		if standPat > alpha {
			alpha = standPat
		}
		if standPat+QueenValue < alpha {
			return alpha
		}
	} else {
		standPat = -MateScore + ply
	}

	var moves *board.MoveList
	if inCheck {
		moves = s.pos.GenerateLegalMoves()
	} else {
		moves = s.pos.GenerateCaptures()
	}

	if inCheck && moves.Len() == 0 {
		return -MateScore + ply
	}

	scores := s.orderer.ScoreMoves(s.pos, moves, ply, board.NoMove)

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if !inCheck {
			captureValue := qsCaptureValue(s.pos, move)
			if standPat+captureValue+200 < alpha {
				continue
			}
			if SEE(s.pos, move) < 0 {
				continue
			}
		}

		movedIsKing := s.pos.PieceAt(move.From()).Type() == board.King
		undo := s.pos.MakeMove(move)
		if !undo.Valid {
			s.pos.UnmakeMove(move, undo)
			continue
		}
		s.evaluator.Push()
		if movedIsKing {
			s.evaluator.Refresh(s.pos)
		} else {
			s.evaluator.Update(s.pos, move, capturedPieceFor(undo))
		}

		score := -s.quiescence(ply+1, -beta, -alpha)

		s.pos.UnmakeMove(move, undo)
		s.evaluator.Pop()

		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}

	return alpha
}

// qsCaptureValue returns the material value of a capture for delta pruning.
func qsCaptureValue(pos *board.Position, move board.Move) int {
	var value int
	if move.IsEnPassant() {
		value = PawnValue
	} else {
		captured := pos.PieceAt(move.To())
		if captured != board.NoPiece {
			value = pieceValues[captured.Type()]
		}
	}
	if move.IsPromotion() {
		value += pieceValues[move.Promotion()] - PawnValue
	}
	return value
}

// isDraw checks for a draw by the 50-move rule, insufficient material,
// or repetition: the current hash occurring at least twice in the
// recorded position history.
func (s *Searcher) isDraw() bool {
	if s.pos.HalfMoveClock >= 100 {
		return true
	}
	if s.pos.IsInsufficientMaterial() {
		return true
	}

	count := 0
	for i := 0; i < s.posHistoryLen; i++ {
		if s.posHistory[i] == s.pos.Hash {
			count++
			if count >= 2 {
				return true
			}
		}
	}

	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Package engine implements the chess search engine.
package engine

import (
	"github.com/hailam/duckchess/internal/board"
)

// Material values in centipawns, used by SEE and quiescence delta pruning.
// Positional evaluation itself is the job of the NNUE network or its PST
// fallback (internal/nnue), not of this file.
const (
	PawnValue   = 100
	KnightValue = 320
	BishopValue = 330
	RookValue   = 500
	QueenValue  = 900
	KingValue   = 20000
)

var pieceValues = [7]int{PawnValue, KnightValue, BishopValue, RookValue, QueenValue, KingValue, 0}

// SEE performs static exchange evaluation on a capture move: the net
// material gain after both sides exchange captures on the target square
// in least-valuable-attacker order.
func SEE(pos *board.Position, m board.Move) int {
	from := m.From()
	to := m.To()

	attacker := pos.PieceAt(from)
	if attacker == board.NoPiece {
		return 0
	}

	var capturedValue int
	if m.IsEnPassant() {
		capturedValue = PawnValue
	} else {
		victim := pos.PieceAt(to)
		if victim == board.NoPiece {
			return 0
		}
		capturedValue = pieceValues[victim.Type()]
	}

	if m.IsPromotion() {
		capturedValue += pieceValues[m.Promotion()] - PawnValue
	}

	return seeSwap(pos, to, from, attacker, capturedValue)
}

// seeSwap runs the swap algorithm: alternating least-valuable-attacker
// captures on target, then negamaxes the resulting gain sequence.
func seeSwap(pos *board.Position, target, excludeFrom board.Square, firstAttacker board.Piece, initialGain int) int {
	var gain [32]int
	d := 0
	gain[d] = initialGain

	occupied := pos.AllOccupied &^ board.SquareBB(excludeFrom)

	attackerValue := pieceValues[firstAttacker.Type()]
	side := firstAttacker.Color().Other()

	for {
		d++
		gain[d] = attackerValue - gain[d-1]

		if max(-gain[d-1], gain[d]) < 0 {
			break
		}

		attackerSq, attackerPiece := getLeastValuableAttacker(pos, target, side, occupied)
		if attackerSq == board.NoSquare {
			break
		}

		occupied &^= board.SquareBB(attackerSq)
		attackerValue = pieceValues[attackerPiece.Type()]
		side = side.Other()
	}

	for d--; d > 0; d-- {
		gain[d-1] = -max(-gain[d-1], gain[d])
	}

	return gain[0]
}

// getLeastValuableAttacker finds the cheapest piece of side attacking
// target among occupied, in pawn..king order. Returns NoSquare if none.
func getLeastValuableAttacker(pos *board.Position, target board.Square, side board.Color, occupied board.Bitboard) (board.Square, board.Piece) {
	pawns := pos.Pieces[side][board.Pawn]
	pawnAttacks := board.PawnAttacks(target, side.Other())
	if attackers := pawns & pawnAttacks & occupied; attackers != 0 {
		return attackers.LSB(), board.NewPiece(board.Pawn, side)
	}

	knights := pos.Pieces[side][board.Knight]
	knightAttacks := board.KnightAttacks(target)
	if attackers := knights & knightAttacks & occupied; attackers != 0 {
		return attackers.LSB(), board.NewPiece(board.Knight, side)
	}

	bishops := pos.Pieces[side][board.Bishop]
	bishopAttacks := board.BishopAttacks(target, occupied)
	if attackers := bishops & bishopAttacks & occupied; attackers != 0 {
		return attackers.LSB(), board.NewPiece(board.Bishop, side)
	}

	rooks := pos.Pieces[side][board.Rook]
	rookAttacks := board.RookAttacks(target, occupied)
	if attackers := rooks & rookAttacks & occupied; attackers != 0 {
		return attackers.LSB(), board.NewPiece(board.Rook, side)
	}

	queens := pos.Pieces[side][board.Queen]
	if attackers := queens & (bishopAttacks | rookAttacks) & occupied; attackers != 0 {
		return attackers.LSB(), board.NewPiece(board.Queen, side)
	}

	kingBB := pos.Pieces[side][board.King]
	kingAttacks := board.KingAttacks(target)
	if attackers := kingBB & kingAttacks & occupied; attackers != 0 {
		return attackers.LSB(), board.NewPiece(board.King, side)
	}

	return board.NoSquare, board.NoPiece
}

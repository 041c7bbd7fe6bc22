package nnue

import "github.com/hailam/duckchess/internal/board"

// featureIndex computes the feature index for a piece of pieceColor and
// pieceType sitting on pieceSquare, as seen from perspective.
//
// The square is mirrored for Black's perspective so that both
// perspectives "see" the board the same way (their own pieces advancing
// up the board); the piece kind is doubled into a friendly half
// (0..5, Pawn..King) and an enemy half (6..11) relative to perspective,
// rather than being crossed with a king square as HalfKP does.
func featureIndex(perspective board.Color, pieceSquare board.Square, pieceColor board.Color, pieceType board.PieceType) int {
	sq := pieceSquare
	if perspective == board.Black {
		sq = pieceSquare.Mirror()
	}

	kind := int(pieceType)
	if pieceColor != perspective {
		kind += 6
	}

	return int(sq)*NumPieceKinds + kind
}

// GetActiveFeatures returns all active feature indices for a position from both perspectives.
func GetActiveFeatures(pos *board.Position) (white, black []int) {
	white = make([]int, 0, 32)
	black = make([]int, 0, 32)

	for color := board.White; color <= board.Black; color++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			pieces := pos.Pieces[color][pt]
			for pieces != 0 {
				sq := pieces.PopLSB()
				white = append(white, featureIndex(board.White, sq, color, pt))
				black = append(black, featureIndex(board.Black, sq, color, pt))
			}
		}
	}

	return white, black
}

// GetChangedFeatures returns the features to add/remove for a move already
// applied to pos, for incremental accumulator updates. The caller must
// special-case king moves (full refresh) before calling this, since a
// king move is reported here as an ordinary single-feature flip but the
// spec requires a full refresh on king moves regardless.
func GetChangedFeatures(pos *board.Position, m board.Move, captured board.Piece) (
	whiteAdd, whiteRem, blackAdd, blackRem []int) {

	from := m.From()
	to := m.To()
	movedPiece := pos.PieceAt(to)
	if movedPiece == board.NoPiece {
		return
	}

	movingPT := movedPiece.Type()
	movingColor := movedPiece.Color()

	whiteRem = append(whiteRem, featureIndex(board.White, from, movingColor, movingPT))
	blackRem = append(blackRem, featureIndex(board.Black, from, movingColor, movingPT))

	addPT := movingPT
	if m.IsPromotion() {
		addPT = m.Promotion()
	}
	whiteAdd = append(whiteAdd, featureIndex(board.White, to, movingColor, addPT))
	blackAdd = append(blackAdd, featureIndex(board.Black, to, movingColor, addPT))

	if captured != board.NoPiece {
		capturedPT := captured.Type()
		capturedColor := captured.Color()
		capturedSq := to
		if m.IsEnPassant() {
			if movingColor == board.White {
				capturedSq = to - 8
			} else {
				capturedSq = to + 8
			}
		}
		whiteRem = append(whiteRem, featureIndex(board.White, capturedSq, capturedColor, capturedPT))
		blackRem = append(blackRem, featureIndex(board.Black, capturedSq, capturedColor, capturedPT))
	}

	if m.IsCastling() {
		var rookFrom, rookTo board.Square
		rank := from.Rank()
		if to > from {
			rookFrom = board.NewSquare(7, rank)
			rookTo = board.NewSquare(5, rank)
		} else {
			rookFrom = board.NewSquare(0, rank)
			rookTo = board.NewSquare(3, rank)
		}
		whiteRem = append(whiteRem, featureIndex(board.White, rookFrom, movingColor, board.Rook))
		blackRem = append(blackRem, featureIndex(board.Black, rookFrom, movingColor, board.Rook))
		whiteAdd = append(whiteAdd, featureIndex(board.White, rookTo, movingColor, board.Rook))
		blackAdd = append(blackAdd, featureIndex(board.Black, rookTo, movingColor, board.Rook))
	}

	return
}

package board

// GenerateLegalMoves generates all legal moves for the position.
//
// The algorithm branches on the number of checkers to the side-to-move's
// king: zero checkers generates the full pseudo-legal set with pinned
// pieces restricted to their pin ray; one checker restricts every
// non-king move to capturing the checker or interposing on the ray
// between checker and king; two or more checkers admits only king
// moves. This avoids the make/unmake-per-candidate approach entirely:
// legality is established once per node from Checkers and ComputePinned,
// not by speculatively playing every pseudo-legal move.
func (p *Position) GenerateLegalMoves() *MoveList {
	ml := NewMoveList()
	us := p.SideToMove
	ksq := p.KingSquare[us]

	switch p.Checkers.PopCount() {
	case 0:
		p.generateLegalKingMoves(ml, us, ksq)
		p.generateCastlingMoves(ml, us)
		p.generateNonKingMoves(ml, us, ^Bitboard(0), ksq)
	case 1:
		checkerSq := p.Checkers.LSB()
		mask := p.checkEvasionMask(checkerSq, ksq)
		p.generateLegalKingMoves(ml, us, ksq)
		p.generateNonKingMoves(ml, us, mask, ksq)
	default:
		p.generateLegalKingMoves(ml, us, ksq)
	}

	return ml
}

// GeneratePseudoLegalMoves generates all moves ignoring check evasion (it
// does not verify the king isn't left in check by a discovered attack
// through a checker); pin filtering is still applied. Nothing in this
// module calls it; the search uses GenerateLegalMoves.
func (p *Position) GeneratePseudoLegalMoves() *MoveList {
	ml := NewMoveList()
	us := p.SideToMove
	p.generateNonKingMoves(ml, us, ^Bitboard(0), p.KingSquare[us])
	from := p.KingSquare[us]
	attacks := KingAttacks(from) & ^p.Occupied[us]
	for attacks != 0 {
		to := attacks.PopLSB()
		ml.Add(NewMove(from, to))
	}
	p.generateCastlingMoves(ml, us)
	return ml
}

// GenerateCaptures generates all legal capture moves (and promotions), for quiescence search.
func (p *Position) GenerateCaptures() *MoveList {
	ml := NewMoveList()
	us := p.SideToMove
	ksq := p.KingSquare[us]
	pinned := p.ComputePinned()

	switch p.Checkers.PopCount() {
	case 0:
		p.generateCapturesMasked(ml, us, ^Bitboard(0), pinned, ksq)
		p.generateLegalKingCaptures(ml, us, ksq)
	case 1:
		checkerSq := p.Checkers.LSB()
		mask := p.checkEvasionMask(checkerSq, ksq)
		p.generateCapturesMasked(ml, us, mask, pinned, ksq)
		p.generateLegalKingCaptures(ml, us, ksq)
	default:
		p.generateLegalKingCaptures(ml, us, ksq)
	}
	return ml
}

// checkEvasionMask returns the set of squares that resolve a single check:
// the checker's own square (to capture it) plus, for a sliding checker,
// every square between the checker and the king (to interpose).
func (p *Position) checkEvasionMask(checkerSq, ksq Square) Bitboard {
	mask := SquareBB(checkerSq)
	switch p.PieceAt(checkerSq).Type() {
	case Bishop, Rook, Queen:
		mask |= Between(checkerSq, ksq)
	}
	return mask
}

// generateLegalKingMoves generates king moves to squares not attacked by
// the opponent, using occupancy with the king itself removed so that a
// slider's attack is not blocked by the very king it is checking.
func (p *Position) generateLegalKingMoves(ml *MoveList, us Color, ksq Square) {
	them := us.Other()
	occWithoutKing := p.AllOccupied &^ SquareBB(ksq)
	attacks := KingAttacks(ksq) & ^p.Occupied[us]
	for attacks != 0 {
		to := attacks.PopLSB()
		if p.AttackersByColor(to, them, occWithoutKing) == 0 {
			ml.Add(NewMove(ksq, to))
		}
	}
}

func (p *Position) generateLegalKingCaptures(ml *MoveList, us Color, ksq Square) {
	them := us.Other()
	occWithoutKing := p.AllOccupied &^ SquareBB(ksq)
	attacks := KingAttacks(ksq) & p.Occupied[them]
	for attacks != 0 {
		to := attacks.PopLSB()
		if p.AttackersByColor(to, them, occWithoutKing) == 0 {
			ml.Add(NewMove(ksq, to))
		}
	}
}

// generateNonKingMoves generates legal knight/bishop/rook/queen/pawn moves.
// mask restricts destination squares (check evasion); ksq is the moving
// side's king square, against which pinned pieces are filtered.
func (p *Position) generateNonKingMoves(ml *MoveList, us Color, mask Bitboard, ksq Square) {
	them := us.Other()
	occupied := p.AllOccupied
	enemies := p.Occupied[them]

	pinned := p.ComputePinned()

	p.generatePawnSet(ml, us, p.Pieces[us][Pawn], enemies, occupied, mask, pinned, ksq)

	knights := p.Pieces[us][Knight] &^ pinned // a pinned knight never has a legal move
	for knights != 0 {
		from := knights.PopLSB()
		attacks := KnightAttacks(from) & ^p.Occupied[us] & mask
		for attacks != 0 {
			to := attacks.PopLSB()
			ml.Add(NewMove(from, to))
		}
	}

	p.generateSliderMoves(ml, us, Bishop, BishopAttacks, mask, pinned, ksq)
	p.generateSliderMoves(ml, us, Rook, RookAttacks, mask, pinned, ksq)
	p.generateSliderMoves(ml, us, Queen, func(sq Square, occ Bitboard) Bitboard {
		return BishopAttacks(sq, occ) | RookAttacks(sq, occ)
	}, mask, pinned, ksq)
}

func (p *Position) generateSliderMoves(ml *MoveList, us Color, pt PieceType, attacksFn func(Square, Bitboard) Bitboard, mask, pinned Bitboard, ksq Square) {
	occupied := p.AllOccupied
	pieces := p.Pieces[us][pt]
	for pieces != 0 {
		from := pieces.PopLSB()
		attacks := attacksFn(from, occupied) & ^p.Occupied[us] & mask
		if pinned&SquareBB(from) != 0 {
			attacks &= Line(ksq, from)
		}
		for attacks != 0 {
			to := attacks.PopLSB()
			ml.Add(NewMove(from, to))
		}
	}
}

// generatePawnSet generates all pawn moves (pushes, captures, promotions,
// en passant) for the given pawn bitboard. Unpinned pawns are generated
// in bulk via shifts; pinned pawns are generated one at a time so each
// can be restricted to its own pin ray.
func (p *Position) generatePawnSet(ml *MoveList, us Color, pawns, enemies, occupied, mask, pinned Bitboard, ksq Square) {
	unpinned := pawns &^ pinned
	p.addPawnMoves(ml, us, unpinned, enemies, occupied, mask)

	pinnedPawns := pawns & pinned
	for pinnedPawns != 0 {
		from := pinnedPawns.PopLSB()
		p.addPawnMoves(ml, us, SquareBB(from), enemies, occupied, mask&Line(ksq, from))
	}

	p.generateEnPassant(ml, us, pawns, mask, ksq)
}

// addPawnMoves generates pushes/captures/promotions for a subset of pawns,
// with the final destination square restricted to mask. Double-push
// intermediate squares are checked against raw occupancy, not mask,
// since only the landing square needs to resolve check/pin.
func (p *Position) addPawnMoves(ml *MoveList, us Color, pawns, enemies, occupied, mask Bitboard) {
	empty := ^occupied
	var rawPush1, attackL, attackR Bitboard
	var promotionRank Bitboard
	var pushDir int

	if us == White {
		rawPush1 = pawns.North() & empty
		attackL = (pawns.NorthWest() & enemies) & mask
		attackR = (pawns.NorthEast() & enemies) & mask
		promotionRank = Rank8
		pushDir = 8
	} else {
		rawPush1 = pawns.South() & empty
		attackL = (pawns.SouthWest() & enemies) & mask
		attackR = (pawns.SouthEast() & enemies) & mask
		promotionRank = Rank1
		pushDir = -8
	}

	push1 := rawPush1 & mask
	var push2 Bitboard
	if us == White {
		push2 = (rawPush1 & Rank3).North() & empty & mask
	} else {
		push2 = (rawPush1 & Rank6).South() & empty & mask
	}

	nonPromo := push1 & ^promotionRank
	for nonPromo != 0 {
		to := nonPromo.PopLSB()
		ml.Add(NewMove(Square(int(to)-pushDir), to))
	}
	for push2 != 0 {
		to := push2.PopLSB()
		ml.Add(NewMove(Square(int(to)-2*pushDir), to))
	}

	nonPromoL := attackL & ^promotionRank
	for nonPromoL != 0 {
		to := nonPromoL.PopLSB()
		ml.Add(NewMove(Square(int(to)-pushDir+1), to))
	}
	nonPromoR := attackR & ^promotionRank
	for nonPromoR != 0 {
		to := nonPromoR.PopLSB()
		ml.Add(NewMove(Square(int(to)-pushDir-1), to))
	}

	promoPush := push1 & promotionRank
	for promoPush != 0 {
		to := promoPush.PopLSB()
		addPromotions(ml, Square(int(to)-pushDir), to)
	}
	promoL := attackL & promotionRank
	for promoL != 0 {
		to := promoL.PopLSB()
		addPromotions(ml, Square(int(to)-pushDir+1), to)
	}
	promoR := attackR & promotionRank
	for promoR != 0 {
		to := promoR.PopLSB()
		addPromotions(ml, Square(int(to)-pushDir-1), to)
	}
}

// generateEnPassant handles the en passant capture, including the
// horizontal-pin edge case where removing both the capturing and
// captured pawns exposes the king to a rook or queen on the same rank
// (a pin that ComputePinned, which only tracks single blockers, cannot
// see because two pawns vanish from the rank at once).
func (p *Position) generateEnPassant(ml *MoveList, us Color, pawns, mask Bitboard, ksq Square) {
	if p.EnPassant == NoSquare {
		return
	}
	them := us.Other()
	epBB := SquareBB(p.EnPassant)
	var capturedSq Square
	var attackers Bitboard
	if us == White {
		attackers = (epBB.SouthWest() | epBB.SouthEast()) & pawns
		capturedSq = p.EnPassant - 8
	} else {
		attackers = (epBB.NorthWest() | epBB.NorthEast()) & pawns
		capturedSq = p.EnPassant + 8
	}

	for attackers != 0 {
		from := attackers.PopLSB()

		// Check-evasion: legal only if capturing the checker itself, or
		// landing on a square that blocks a sliding check.
		if mask != ^Bitboard(0) && mask&(SquareBB(capturedSq)|SquareBB(p.EnPassant)) == 0 {
			continue
		}

		// Ordinary pin: moving pawn must stay on its own pin ray.
		if p.ComputePinned()&SquareBB(from) != 0 && Line(ksq, from)&SquareBB(p.EnPassant) == 0 {
			continue
		}

		// Horizontal-pin edge case: remove both pawns and see if a
		// rook/queen now attacks the king along the vacated rank/file.
		occAfter := p.AllOccupied &^ SquareBB(from) &^ SquareBB(capturedSq)
		occAfter |= SquareBB(p.EnPassant)
		attackersToKing := (RookAttacks(ksq, occAfter) & (p.Pieces[them][Rook] | p.Pieces[them][Queen])) |
			(BishopAttacks(ksq, occAfter) & (p.Pieces[them][Bishop] | p.Pieces[them][Queen]))
		if attackersToKing != 0 {
			continue
		}

		ml.Add(NewEnPassant(from, p.EnPassant))
	}
}

// addPromotions adds all four promotion moves.
func addPromotions(ml *MoveList, from, to Square) {
	ml.Add(NewPromotion(from, to, Queen))
	ml.Add(NewPromotion(from, to, Rook))
	ml.Add(NewPromotion(from, to, Bishop))
	ml.Add(NewPromotion(from, to, Knight))
}

// generateCastlingMoves generates castling moves. GenerateLegalMoves calls
// it only in its zero-checkers arm; GeneratePseudoLegalMoves calls it
// regardless of check.
func (p *Position) generateCastlingMoves(ml *MoveList, us Color) {
	them := us.Other()

	if us == White {
		if p.CastlingRights&WhiteKingSideCastle != 0 {
			if p.AllOccupied&((1<<F1)|(1<<G1)) == 0 {
				if !p.IsSquareAttacked(E1, them) && !p.IsSquareAttacked(F1, them) && !p.IsSquareAttacked(G1, them) {
					ml.Add(NewCastling(E1, G1))
				}
			}
		}
		if p.CastlingRights&WhiteQueenSideCastle != 0 {
			if p.AllOccupied&((1<<B1)|(1<<C1)|(1<<D1)) == 0 {
				if !p.IsSquareAttacked(E1, them) && !p.IsSquareAttacked(D1, them) && !p.IsSquareAttacked(C1, them) {
					ml.Add(NewCastling(E1, C1))
				}
			}
		}
	} else {
		if p.CastlingRights&BlackKingSideCastle != 0 {
			if p.AllOccupied&((1<<F8)|(1<<G8)) == 0 {
				if !p.IsSquareAttacked(E8, them) && !p.IsSquareAttacked(F8, them) && !p.IsSquareAttacked(G8, them) {
					ml.Add(NewCastling(E8, G8))
				}
			}
		}
		if p.CastlingRights&BlackQueenSideCastle != 0 {
			if p.AllOccupied&((1<<B8)|(1<<C8)|(1<<D8)) == 0 {
				if !p.IsSquareAttacked(E8, them) && !p.IsSquareAttacked(D8, them) && !p.IsSquareAttacked(C8, them) {
					ml.Add(NewCastling(E8, C8))
				}
			}
		}
	}
}

// generateCapturesMasked generates legal captures (and capture/push
// promotions) for knights, bishops, rooks, queens and pawns, respecting
// the check-evasion mask and pin rays exactly as GenerateLegalMoves does.
func (p *Position) generateCapturesMasked(ml *MoveList, us Color, mask, pinned Bitboard, ksq Square) {
	them := us.Other()
	enemies := p.Occupied[them]
	occupied := p.AllOccupied

	p.generatePawnCaptureSet(ml, us, p.Pieces[us][Pawn], enemies, occupied, mask, pinned, ksq)

	knights := p.Pieces[us][Knight] &^ pinned
	for knights != 0 {
		from := knights.PopLSB()
		attacks := KnightAttacks(from) & enemies & mask
		for attacks != 0 {
			to := attacks.PopLSB()
			ml.Add(NewMove(from, to))
		}
	}

	for _, pt := range [...]PieceType{Bishop, Rook, Queen} {
		pieces := p.Pieces[us][pt]
		for pieces != 0 {
			from := pieces.PopLSB()
			var attacks Bitboard
			switch pt {
			case Bishop:
				attacks = BishopAttacks(from, occupied)
			case Rook:
				attacks = RookAttacks(from, occupied)
			case Queen:
				attacks = BishopAttacks(from, occupied) | RookAttacks(from, occupied)
			}
			attacks &= enemies & mask
			if pinned&SquareBB(from) != 0 {
				attacks &= Line(ksq, from)
			}
			for attacks != 0 {
				to := attacks.PopLSB()
				ml.Add(NewMove(from, to))
			}
		}
	}
}

func (p *Position) generatePawnCaptureSet(ml *MoveList, us Color, pawns, enemies, occupied, mask, pinned Bitboard, ksq Square) {
	unpinned := pawns &^ pinned
	p.addPawnCaptures(ml, us, unpinned, enemies, occupied, mask)

	pinnedPawns := pawns & pinned
	for pinnedPawns != 0 {
		from := pinnedPawns.PopLSB()
		p.addPawnCaptures(ml, us, SquareBB(from), enemies, occupied, mask&Line(ksq, from))
	}

	p.generateEnPassant(ml, us, pawns, mask, ksq)
}

func (p *Position) addPawnCaptures(ml *MoveList, us Color, pawns, enemies, occupied, mask Bitboard) {
	var attackL, attackR, pushPromo Bitboard
	var promotionRank Bitboard
	var pushDir int
	empty := ^occupied

	if us == White {
		attackL = (pawns.NorthWest() & enemies) & mask
		attackR = (pawns.NorthEast() & enemies) & mask
		pushPromo = (pawns.North() & empty & Rank8) & mask
		promotionRank = Rank8
		pushDir = 8
	} else {
		attackL = (pawns.SouthWest() & enemies) & mask
		attackR = (pawns.SouthEast() & enemies) & mask
		pushPromo = (pawns.South() & empty & Rank1) & mask
		promotionRank = Rank1
		pushDir = -8
	}

	nonPromoL := attackL & ^promotionRank
	for nonPromoL != 0 {
		to := nonPromoL.PopLSB()
		ml.Add(NewMove(Square(int(to)-pushDir+1), to))
	}
	nonPromoR := attackR & ^promotionRank
	for nonPromoR != 0 {
		to := nonPromoR.PopLSB()
		ml.Add(NewMove(Square(int(to)-pushDir-1), to))
	}

	promoL := attackL & promotionRank
	for promoL != 0 {
		to := promoL.PopLSB()
		addPromotions(ml, Square(int(to)-pushDir+1), to)
	}
	promoR := attackR & promotionRank
	for promoR != 0 {
		to := promoR.PopLSB()
		addPromotions(ml, Square(int(to)-pushDir-1), to)
	}
	for pushPromo != 0 {
		to := pushPromo.PopLSB()
		addPromotions(ml, Square(int(to)-pushDir), to)
	}
}

// MakeMove applies a move to the position and returns undo information.
func (p *Position) MakeMove(m Move) UndoInfo {
	undo := UndoInfo{
		CapturedPiece:  NoPiece,
		CastlingRights: p.CastlingRights,
		EnPassant:      p.EnPassant,
		HalfMoveClock:  p.HalfMoveClock,
		Hash:           p.Hash,
		Checkers:       p.Checkers,
		Valid:          false,
	}

	us := p.SideToMove
	them := us.Other()
	from := m.From()
	to := m.To()
	piece := p.PieceAt(from)

	if piece == NoPiece {
		return undo
	}

	undo.Valid = true
	pt := piece.Type()

	p.Hash ^= zobristSideToMove
	p.Hash ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}

	p.EnPassant = NoSquare

	if m.IsEnPassant() {
		var capturedSq Square
		if us == White {
			capturedSq = to - 8
		} else {
			capturedSq = to + 8
		}
		undo.CapturedPiece = p.removePiece(capturedSq)
		p.Hash ^= zobristPiece[them][Pawn][capturedSq]
	} else if captured := p.PieceAt(to); captured != NoPiece {
		undo.CapturedPiece = captured
		p.removePiece(to)
		p.Hash ^= zobristPiece[them][captured.Type()][to]
	}

	p.movePiece(from, to)
	p.Hash ^= zobristPiece[us][pt][from]
	p.Hash ^= zobristPiece[us][pt][to]

	if m.IsPromotion() {
		promoPt := m.Promotion()
		p.Pieces[us][Pawn] &^= SquareBB(to)
		p.Pieces[us][promoPt] |= SquareBB(to)
		p.Hash ^= zobristPiece[us][Pawn][to]
		p.Hash ^= zobristPiece[us][promoPt][to]
	}

	if m.IsCastling() {
		var rookFrom, rookTo Square
		if to > from {
			rookFrom = NewSquare(7, from.Rank())
			rookTo = NewSquare(5, from.Rank())
		} else {
			rookFrom = NewSquare(0, from.Rank())
			rookTo = NewSquare(3, from.Rank())
		}
		p.movePiece(rookFrom, rookTo)
		p.Hash ^= zobristPiece[us][Rook][rookFrom]
		p.Hash ^= zobristPiece[us][Rook][rookTo]
	}

	if pt == King {
		if us == White {
			p.CastlingRights &^= WhiteKingSideCastle | WhiteQueenSideCastle
		} else {
			p.CastlingRights &^= BlackKingSideCastle | BlackQueenSideCastle
		}
	}

	if from == A1 || to == A1 {
		p.CastlingRights &^= WhiteQueenSideCastle
	}
	if from == H1 || to == H1 {
		p.CastlingRights &^= WhiteKingSideCastle
	}
	if from == A8 || to == A8 {
		p.CastlingRights &^= BlackQueenSideCastle
	}
	if from == H8 || to == H8 {
		p.CastlingRights &^= BlackKingSideCastle
	}

	p.Hash ^= zobristCastling[p.CastlingRights]

	if pt == Pawn && abs(int(to)-int(from)) == 16 {
		epSquare := Square((int(from) + int(to)) / 2)
		p.EnPassant = epSquare
		p.Hash ^= zobristEnPassant[epSquare.File()]
	}

	if pt == Pawn || undo.CapturedPiece != NoPiece {
		p.HalfMoveClock = 0
	} else {
		p.HalfMoveClock++
	}

	if us == Black {
		p.FullMoveNumber++
	}

	p.SideToMove = them
	p.UpdateCheckers()

	return undo
}

// UnmakeMove undoes a move using the stored undo information.
func (p *Position) UnmakeMove(m Move, undo UndoInfo) {
	them := p.SideToMove
	us := them.Other()
	from := m.From()
	to := m.To()

	p.CastlingRights = undo.CastlingRights
	p.EnPassant = undo.EnPassant
	p.HalfMoveClock = undo.HalfMoveClock
	p.Hash = undo.Hash
	p.Checkers = undo.Checkers
	p.SideToMove = us

	if us == Black {
		p.FullMoveNumber--
	}

	if m.IsPromotion() {
		promoPt := m.Promotion()
		p.Pieces[us][promoPt] &^= SquareBB(to)
		p.Pieces[us][Pawn] |= SquareBB(to)
	}

	p.movePiece(to, from)

	if m.IsCastling() {
		var rookFrom, rookTo Square
		if to > from {
			rookFrom = NewSquare(7, from.Rank())
			rookTo = NewSquare(5, from.Rank())
		} else {
			rookFrom = NewSquare(0, from.Rank())
			rookTo = NewSquare(3, from.Rank())
		}
		p.movePiece(rookTo, rookFrom)
	}

	if undo.CapturedPiece != NoPiece {
		if m.IsEnPassant() {
			var capturedSq Square
			if us == White {
				capturedSq = to - 8
			} else {
				capturedSq = to + 8
			}
			p.setPiece(undo.CapturedPiece, capturedSq)
		} else {
			p.setPiece(undo.CapturedPiece, to)
		}
	}
}

// HasLegalMoves returns true if the side to move has any legal moves.
func (p *Position) HasLegalMoves() bool {
	return p.GenerateLegalMoves().Len() > 0
}

// IsCheckmate returns true if the position is checkmate.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate returns true if the position is stalemate.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}

// IsDraw returns true if the position is a draw (stalemate, 50-move, insufficient material).
func (p *Position) IsDraw() bool {
	if p.IsStalemate() {
		return true
	}
	if p.HalfMoveClock >= 100 {
		return true
	}
	return p.IsInsufficientMaterial()
}

// IsInsufficientMaterial returns true if neither side can checkmate.
func (p *Position) IsInsufficientMaterial() bool {
	if p.Pieces[White][Pawn]|p.Pieces[Black][Pawn] != 0 ||
		p.Pieces[White][Rook]|p.Pieces[Black][Rook] != 0 ||
		p.Pieces[White][Queen]|p.Pieces[Black][Queen] != 0 {
		return false
	}

	wKnights := p.Pieces[White][Knight].PopCount()
	wBishops := p.Pieces[White][Bishop].PopCount()
	bKnights := p.Pieces[Black][Knight].PopCount()
	bBishops := p.Pieces[Black][Bishop].PopCount()

	if wKnights+wBishops+bKnights+bBishops == 0 {
		return true
	}
	if wKnights+wBishops <= 1 && bKnights+bBishops == 0 {
		return true
	}
	if bKnights+bBishops <= 1 && wKnights+wBishops == 0 {
		return true
	}

	return false
}

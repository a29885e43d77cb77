package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Game is an Oracle backed by corentings/chess. Not safe for concurrent use.
type Game struct {
	game *nchess.Game
}

var _ Oracle = (*Game)(nil)

// New returns a game at the standard initial position.
func New() *Game { return &Game{game: nchess.NewGame()} }

// FromFEN seeds a game from an arbitrary position.
func FromFEN(fen string) (*Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return &Game{game: nchess.NewGame(opt)}, nil
}

// AttemptMove applies from→to if it is legal. A promotion piece on a move that
// does not promote is ignored; a promoting move without one is rejected.
func (g *Game) AttemptMove(from, to string, promotion PieceKind) (MoveResult, error) {
	from, to = strings.ToLower(strings.TrimSpace(from)), strings.ToLower(strings.TrimSpace(to))
	if g.TerminalStatus().Over() {
		return MoveResult{}, ErrRejected
	}

	uci := ""
	for _, mv := range g.game.ValidMoves() {
		if mv.S1().String() != from || mv.S2().String() != to {
			continue
		}
		if mv.Promo() == nchess.NoPieceType {
			uci = from + to
			break
		}
		if promoKind(mv.Promo()) == promotion {
			uci = from + to + promotion.Letter()
			break
		}
	}
	if uci == "" {
		return MoveResult{}, ErrRejected
	}

	pre := g.game.Position()
	if err := g.game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	res := MoveResult{
		Move: Move{From: from, To: to, Promotion: ParsePieceKind(strings.TrimPrefix(uci, from+to))},
		FEN:  g.game.FEN(),
	}
	if last := g.lastMove(); last != nil {
		res.SAN = nchess.AlgebraicNotation{}.Encode(pre, last)
	}
	return res, nil
}

func (g *Game) CurrentPosition() string { return g.game.FEN() }

func (g *Game) SideToMove() Color {
	if g.game.Position().Turn() == nchess.Black {
		return Black
	}
	return White
}

// TerminalStatus maps the library outcome onto Terminal. Threefold repetition is
// claimable rather than automatic in the library, so it is read from the eligible draws.
func (g *Game) TerminalStatus() Terminal {
	switch g.game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		if g.game.Method() == nchess.Checkmate {
			return TerminalCheckmate
		}
		// resignation never happens here, but a decided game is still over
		return TerminalDraw
	case nchess.Draw:
		switch g.game.Method() {
		case nchess.Stalemate:
			return TerminalStalemate
		case nchess.InsufficientMaterial:
			return TerminalInsufficientMaterial
		case nchess.ThreefoldRepetition:
			return TerminalThreefoldRepetition
		default:
			return TerminalDraw
		}
	}
	for _, m := range g.game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition {
			return TerminalThreefoldRepetition
		}
	}
	return TerminalNone
}

// InCheck reports whether the side to move is in check. Only positions reached by
// a move carry the check tag; a freshly seeded FEN reports false.
func (g *Game) InCheck() bool {
	if g.game.Method() == nchess.Checkmate {
		return true
	}
	last := g.lastMove()
	return last != nil && last.HasTag(nchess.Check)
}

// LegalMoves is empty once the game is over.
func (g *Game) LegalMoves() []Move {
	if g.TerminalStatus().Over() {
		return nil
	}
	var out []Move
	for _, mv := range g.game.ValidMoves() {
		out = append(out, Move{From: mv.S1().String(), To: mv.S2().String(), Promotion: promoKind(mv.Promo())})
	}
	return out
}

// Board exposes the underlying board for rendering.
func (g *Game) Board() *nchess.Board { return g.game.Position().Board() }

// PGN returns the movetext of the game so far.
func (g *Game) PGN() string { return g.game.String() }

func (g *Game) lastMove() *nchess.Move {
	moves := g.game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func promoKind(pt nchess.PieceType) PieceKind {
	switch pt {
	case nchess.Queen:
		return Queen
	case nchess.Rook:
		return Rook
	case nchess.Bishop:
		return Bishop
	case nchess.Knight:
		return Knight
	default:
		return NoPiece
	}
}

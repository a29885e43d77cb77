package rules

import (
	"errors"
	"strings"
)

// ErrRejected is returned when the oracle refuses a move intent.
var ErrRejected = errors.New("rules: move rejected")

// ErrInvalidFEN wraps FEN parse failures.
var ErrInvalidFEN = errors.New("rules: invalid fen")

type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// Name is the capitalised form used in status texts.
func (c Color) Name() string {
	if c == Black {
		return "Black"
	}
	return "White"
}

func (c Color) Other() Color {
	if c == Black {
		return White
	}
	return Black
}

// ParseColor accepts "white"/"black" (and "w"/"b").
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return White, false
	}
}

// PieceKind is a promotion choice.
type PieceKind byte

const (
	NoPiece PieceKind = iota
	Queen
	Rook
	Bishop
	Knight
)

// Letter is the lowercase wire form ("q", "r", "b", "n"); empty for NoPiece.
func (k PieceKind) Letter() string {
	switch k {
	case Queen:
		return "q"
	case Rook:
		return "r"
	case Bishop:
		return "b"
	case Knight:
		return "n"
	default:
		return ""
	}
}

func ParsePieceKind(s string) PieceKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "q":
		return Queen
	case "r":
		return Rook
	case "b":
		return Bishop
	case "n":
		return Knight
	default:
		return NoPiece
	}
}

// Terminal names how a game ended; TerminalNone while play continues.
type Terminal string

const (
	TerminalNone                 Terminal = ""
	TerminalCheckmate            Terminal = "checkmate"
	TerminalStalemate            Terminal = "stalemate"
	TerminalDraw                 Terminal = "draw"
	TerminalInsufficientMaterial Terminal = "insufficientMaterial"
	TerminalThreefoldRepetition  Terminal = "threefoldRepetition"
)

func (t Terminal) Over() bool { return t != TerminalNone }

type Move struct {
	From      string
	To        string
	Promotion PieceKind
}

// UCI renders the move as long algebraic, e.g. "e7e8q".
func (m Move) UCI() string { return m.From + m.To + m.Promotion.Letter() }

// MoveResult describes an applied move.
type MoveResult struct {
	Move Move
	SAN  string
	FEN  string
}

// Oracle is the rules authority a client consults before and after every move.
type Oracle interface {
	AttemptMove(from, to string, promotion PieceKind) (MoveResult, error)
	CurrentPosition() string
	SideToMove() Color
	TerminalStatus() Terminal
	InCheck() bool
	LegalMoves() []Move
}

package player

import (
	"github.com/park285/chess-duel/internal/msgcat"
	"github.com/park285/chess-duel/internal/rules"
)

type Mode int

const (
	ModeBot Mode = iota
	ModeMultiplayer
)

func (m Mode) String() string {
	if m == ModeMultiplayer {
		return "multiplayer"
	}
	return "bot"
}

// View is everything the status line depends on. Several terminal flags may be set
// at once; Status resolves them by priority.
type View struct {
	Mode         Mode
	Checkmate    bool
	Draw         bool
	Stalemate    bool
	Threefold    bool
	Insufficient bool
	Check        bool
	SideToMove   rules.Color
	// LocalColor only matters in multiplayer mode.
	LocalColor rules.Color
}

// ViewOf reads the flags for v from an oracle.
func ViewOf(o rules.Oracle, mode Mode, local rules.Color) View {
	v := View{Mode: mode, SideToMove: o.SideToMove(), LocalColor: local, Check: o.InCheck()}
	switch o.TerminalStatus() {
	case rules.TerminalCheckmate:
		v.Checkmate = true
	case rules.TerminalDraw:
		v.Draw = true
	case rules.TerminalStalemate:
		v.Stalemate = true
	case rules.TerminalThreefoldRepetition:
		v.Threefold = true
	case rules.TerminalInsufficientMaterial:
		v.Insufficient = true
	}
	return v
}

// Status derives the status line for v using the embedded catalog.
func Status(v View) string {
	cat, _ := msgcat.Default()
	return StatusText(cat, v)
}

// StatusText is Status with an explicit catalog. The winner of a checkmate is the
// side that is not to move.
func StatusText(cat *msgcat.Catalog, v View) string {
	switch {
	case v.Checkmate:
		return cat.Text(msgcat.KeyCheckmate, map[string]string{"Winner": v.SideToMove.Other().Name()}, "Checkmate! "+v.SideToMove.Other().Name()+" wins!")
	case v.Draw:
		return cat.Text(msgcat.KeyDraw, nil, "Game over - Draw!")
	case v.Stalemate:
		return cat.Text(msgcat.KeyStalemate, nil, "Game over - Stalemate!")
	case v.Threefold:
		return cat.Text(msgcat.KeyThreefold, nil, "Game over - Threefold repetition!")
	case v.Insufficient:
		return cat.Text(msgcat.KeyInsufficient, nil, "Game over - Insufficient material!")
	case v.Check:
		return cat.Text(msgcat.KeyCheck, nil, "Check!")
	}

	side := map[string]string{"Side": v.SideToMove.Name()}
	if v.Mode != ModeMultiplayer {
		return cat.Text(msgcat.KeyToMove, side, v.SideToMove.Name()+" to move")
	}
	if v.SideToMove == v.LocalColor {
		return cat.Text(msgcat.KeyYourTurn, side, v.SideToMove.Name()+" to move (Your turn)")
	}
	return cat.Text(msgcat.KeyOpponentTurn, side, v.SideToMove.Name()+" to move (Opponent's turn)")
}

package wire

// Event names exchanged over the relay channel.
const (
	EventFindGame             = "find_game"
	EventWaiting              = "waiting"
	EventGameStart            = "game_start"
	EventMakeMove             = "make_move"
	EventOpponentMove         = "opponent_move"
	EventUpdateGame           = "update_game"
	EventOpponentDisconnected = "opponent_disconnected"
)

// Colors carried by game_start.
const (
	ColorWhite = "white"
	ColorBlack = "black"
)

// StartFEN is the standard initial position every session starts from.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

package wire

// Move is a normalized move intent. Promotion is a lowercase piece letter ("q", "r", "b", "n") or empty.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type GameStart struct {
	GameID     string `json:"gameId"`
	Color      string `json:"color"`
	OpponentID string `json:"opponentId"`
}

type MakeMove struct {
	GameID string `json:"gameId"`
	Move   Move   `json:"move"`
}

type OpponentMove struct {
	Move Move `json:"move"`
}

type UpdateGame struct {
	GameID string `json:"gameId"`
	FEN    string `json:"fen"`
}

// SocketInfo is the informational HTTP response describing the channel endpoint.
type SocketInfo struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Stats reports broker counters.
type Stats struct {
	Waiting     int `json:"waiting"`
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

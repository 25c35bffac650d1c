package coachdto

type SelectSideRequest struct {
	Color string `json:"color"`
}

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type MoveResponse struct {
	Session   Session `json:"session"`
	Move      Move    `json:"move"`
	Reply     *Move   `json:"reply,omitempty"`
	Discarded int     `json:"discarded"`
	Notice    string  `json:"notice,omitempty"`
}

type JumpRequest struct {
	Index int `json:"index"`
}

type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type TapRequest struct {
	Square string `json:"square"`
}

type PointerRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// Board geometry; a zero size keeps the previous one.
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	Size    float64 `json:"size"`
	Flipped bool    `json:"flipped"`
}

type IntentResponse struct {
	Armed     string  `json:"armed,omitempty"`
	Attempted bool    `json:"attempted"`
	Accepted  bool    `json:"accepted"`
	Session   Session `json:"session"`
}

type ExportResponse struct {
	Movetext string `json:"movetext"`
	PGN      string `json:"pgn"`
}

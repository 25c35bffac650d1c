package uci

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	CmdUCI     = "uci"
	CmdIsReady = "isready"
	CmdNewGame = "ucinewgame"
	CmdStop    = "stop"
	CmdQuit    = "quit"

	TokenUCIOK   = "uciok"
	TokenReadyOK = "readyok"
)

var coordinateMove = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

type Options struct {
	Threads int
	HashMB  int
	// SkillLevel is sent as "Skill Level" when set; nil leaves the engine default.
	SkillLevel *int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	Nodes          int
}

// OptionCommands returns the setoption lines sent once during the handshake.
func OptionCommands(opt Options) []string {
	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	cmds := []string{fmt.Sprintf("setoption name Threads value %d", threads)}
	if opt.HashMB > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Hash value %d", opt.HashMB))
	}
	if opt.SkillLevel != nil {
		cmds = append(cmds, fmt.Sprintf("setoption name Skill Level value %d", *opt.SkillLevel))
	}
	return cmds
}

func PositionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos"
	}
	return "position fen " + fen
}

func GoCommand(l Limits) (string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.Nodes > 0 {
		args = append(args, "nodes", strconv.Itoa(l.Nodes))
	}
	if len(args) == 1 {
		return "", fmt.Errorf("no search limits specified")
	}
	return strings.Join(args, " "), nil
}

type BestMove struct {
	Move   string
	Ponder string
	// None is set when the process reports "(none)" for a position without moves.
	None bool
}

// ParseBestMove reads a "bestmove <move> [ponder <move>]" line.
func ParseBestMove(line string) (BestMove, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "bestmove" {
		return BestMove{}, false
	}
	bm := BestMove{Move: strings.ToLower(parts[1])}
	if bm.Move == "(none)" || bm.Move == "0000" {
		return BestMove{None: true}, true
	}
	if len(parts) >= 4 && parts[2] == "ponder" {
		bm.Ponder = strings.ToLower(parts[3])
	}
	return bm, true
}

// ValidCoordinateMove checks the <from><to>[promotion] shape only, not legality.
func ValidCoordinateMove(s string) bool {
	return coordinateMove.MatchString(s)
}

func IsReadyOK(line string) bool { return strings.TrimSpace(line) == TokenReadyOK }

func IsUCIOK(line string) bool { return strings.TrimSpace(line) == TokenUCIOK }

// ParseID returns the value of an "id name ..." line.
func ParseID(line string) (string, bool) {
	const prefix = "id name "
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
}

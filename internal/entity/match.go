package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
)

type Symbol string

const (
	SymbolNone Symbol = ""
	SymbolX    Symbol = "X"
	SymbolO    Symbol = "O"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const (
	BoardSize = 9

	// MaxMarksOnBoard is the sliding window: the oldest mark vanishes once a seventh is placed.
	MaxMarksOnBoard = 6
)

var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Opponent returns the other symbol. SymbolNone has no opponent.
func (that Symbol) Opponent() Symbol {
	switch that {
	case SymbolX:
		return SymbolO
	case SymbolO:
		return SymbolX
	default:
		return SymbolNone
	}
}

// MarshalJSON encodes an empty cell or an absent winner as null.
func (that Symbol) MarshalJSON() ([]byte, error) {
	if that == SymbolNone {
		return []byte("null"), nil
	}

	return json.Marshal(string(that))
}

func (that *Symbol) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*that = SymbolNone
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal symbol: %w", err)
	}

	switch Symbol(raw) {
	case SymbolNone, SymbolX, SymbolO:
		*that = Symbol(raw)
		return nil
	default:
		return fmt.Errorf("unknown symbol %q", raw)
	}
}

type Board [BoardSize]Symbol

// Count returns how many cells hold the symbol.
func (that Board) Count(symbol Symbol) int {
	var n int
	for _, cell := range that {
		if cell == symbol {
			n++
		}
	}

	return n
}

type MoveRecord struct {
	Position int    `json:"position"`
	Symbol   Symbol `json:"symbol"`
}

type Match struct {
	Code        string       `json:"code"`
	PlayerX     string       `json:"player1_id"`
	PlayerO     string       `json:"player2_id,omitempty"`
	Board       Board        `json:"board"`
	History     []MoveRecord `json:"move_history"`
	CurrentTurn Symbol       `json:"current_turn"`
	Winner      Symbol       `json:"winner"`
	Status      Status       `json:"status"`
	// Version grows by one with every committed change.
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NormalizeCode canonicalizes a user-typed share code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewMatch opens a match in the waiting state with the creator holding X.
func NewMatch(code, firstPlayerID string) *Match {
	now := time.Now().UTC()

	return &Match{
		Code:        code,
		PlayerX:     firstPlayerID,
		History:     make([]MoveRecord, 0, MaxMarksOnBoard+1),
		CurrentTurn: SymbolX,
		Winner:      SymbolNone,
		Status:      StatusWaiting,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (that *Match) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Match) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *Match) IsFinished() bool {
	return that.Status == StatusFinished
}

// Join assigns the O role and starts the match.
func (that *Match) Join(secondPlayerID string) error {
	if that.PlayerO != "" || !that.IsWaiting() {
		return apperror.ErrAlreadyFull
	}

	if secondPlayerID == that.PlayerX {
		return apperror.ErrSelfJoin
	}

	that.PlayerO = secondPlayerID
	that.Status = StatusPlaying
	that.Version++
	that.UpdatedAt = time.Now().UTC()

	return nil
}

// SymbolOf resolves the role held by playerID.
func (that *Match) SymbolOf(playerID string) (Symbol, bool) {
	switch {
	case playerID == "":
		return SymbolNone, false
	case playerID == that.PlayerX:
		return SymbolX, true
	case playerID == that.PlayerO:
		return SymbolO, true
	default:
		return SymbolNone, false
	}
}

// ApplyMove validates and applies one move. A rejected move leaves the match untouched.
func (that *Match) ApplyMove(playerID string, position int) error {
	symbol, err := that.validateMove(playerID, position)
	if err != nil {
		return err
	}

	that.Board[position] = symbol
	that.History = append(that.History, MoveRecord{Position: position, Symbol: symbol})

	// eviction must run before the win check: a vanished mark never wins
	if len(that.History) > MaxMarksOnBoard {
		oldest := that.History[0]
		that.History = slices.Delete(that.History, 0, 1)
		that.Board[oldest.Position] = SymbolNone
	}

	if winner := CheckWinner(that.Board); winner != SymbolNone {
		that.Winner = winner
		that.Status = StatusFinished
	} else {
		that.CurrentTurn = symbol.Opponent()
	}

	that.Version++
	that.UpdatedAt = time.Now().UTC()

	return nil
}

func (that *Match) validateMove(playerID string, position int) (Symbol, error) {
	if !that.IsPlaying() {
		return SymbolNone, fmt.Errorf("%w: status %s", apperror.ErrMatchNotActive, that.Status)
	}

	if position < 0 || position >= BoardSize {
		return SymbolNone, fmt.Errorf("%w: %d", apperror.ErrInvalidPosition, position)
	}

	symbol, ok := that.SymbolOf(playerID)
	if !ok {
		return SymbolNone, apperror.ErrNotAPlayer
	}

	if symbol != that.CurrentTurn {
		return SymbolNone, apperror.ErrNotYourTurn
	}

	if that.Board[position] != SymbolNone {
		return SymbolNone, fmt.Errorf("%w: %d", apperror.ErrPositionOccupied, position)
	}

	return symbol, nil
}

// CheckWinner reports the symbol holding any full line, or SymbolNone.
func CheckWinner(board Board) Symbol {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != SymbolNone && a == b && b == c {
			return a
		}
	}

	return SymbolNone
}

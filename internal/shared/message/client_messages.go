package message

import (
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
)

type ClientMessageType string

const (
	JoinQueue       ClientMessageType = "JoinQueue"
	LeaveQueue      ClientMessageType = "LeaveQueue"
	SwapGems        ClientMessageType = "SwapGems"
	ScoreUpdate     ClientMessageType = "ScoreUpdate"
	SendGarbage     ClientMessageType = "SendGarbage"
	CancelGarbage   ClientMessageType = "CancelGarbage"
	ActivateSpecial ClientMessageType = "ActivateSpecial"
	ActivateBooster ClientMessageType = "ActivateBooster"
	RequestRematch  ClientMessageType = "RequestRematch"
	LeaveGame       ClientMessageType = "LeaveGame"
)

var clientMessageTypeRegistry = map[string]func() Message{
	string(JoinQueue):       func() Message { return &JoinQueueMessage{} },
	string(LeaveQueue):      func() Message { return &LeaveQueueMessage{} },
	string(SwapGems):        func() Message { return &SwapGemsMessage{} },
	string(ScoreUpdate):     func() Message { return &ScoreUpdateMessage{} },
	string(SendGarbage):     func() Message { return &SendGarbageMessage{} },
	string(CancelGarbage):   func() Message { return &CancelGarbageMessage{} },
	string(ActivateSpecial): func() Message { return &ActivateSpecialMessage{} },
	string(ActivateBooster): func() Message { return &ActivateBoosterMessage{} },
	string(RequestRematch):  func() Message { return &RequestRematchMessage{} },
	string(LeaveGame):       func() Message { return &LeaveGameMessage{} },
}

type JoinQueueMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *JoinQueueMessage) GetDiscriminator() string {
	return string(JoinQueue)
}

type LeaveQueueMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *LeaveQueueMessage) GetDiscriminator() string {
	return string(LeaveQueue)
}

// Move is a swap of two board cells. The server never checks that it is legal.
type Move struct {
	Row1 int `json:"row1"`
	Col1 int `json:"col1"`
	Row2 int `json:"row2"`
	Col2 int `json:"col2"`
}

// GarbagePayload is an attack riding on a swap or a score report. Target defaults
// to the opponent.
type GarbagePayload struct {
	Amount *int          `json:"amount" validate:"required,gte=1"`
	Target uuidstring.ID `json:"target,omitempty"`
}

// Pointers let a missing coordinate be told apart from row/col 0.
type SwapGemsMessage struct {
	TypeDiscriminator string          `json:"type"`
	Row1              *int            `json:"row1" validate:"required,gte=0"`
	Col1              *int            `json:"col1" validate:"required,gte=0"`
	Row2              *int            `json:"row2" validate:"required,gte=0"`
	Col2              *int            `json:"col2" validate:"required,gte=0"`
	Garbage           *GarbagePayload `json:"garbage,omitempty"`
}

func (m *SwapGemsMessage) GetDiscriminator() string {
	return string(SwapGems)
}

func (m *SwapGemsMessage) Move() Move {
	return Move{Row1: *m.Row1, Col1: *m.Col1, Row2: *m.Row2, Col2: *m.Col2}
}

func NewSwapGemsMessage(mv Move) *SwapGemsMessage {
	return &SwapGemsMessage{
		TypeDiscriminator: string(SwapGems),
		Row1:              &mv.Row1,
		Col1:              &mv.Col1,
		Row2:              &mv.Row2,
		Col2:              &mv.Col2,
	}
}

type ScoreUpdateMessage struct {
	TypeDiscriminator string          `json:"type"`
	Score             *uint32         `json:"score" validate:"required"`
	Garbage           *GarbagePayload `json:"garbage,omitempty"`
}

func (m *ScoreUpdateMessage) GetDiscriminator() string {
	return string(ScoreUpdate)
}

func (m *ScoreUpdateMessage) Value() uint32 {
	return *m.Score
}

type SendGarbageMessage struct {
	TypeDiscriminator string `json:"type"`
	Amount            *int   `json:"amount" validate:"required,gte=1"`
}

func (m *SendGarbageMessage) GetDiscriminator() string {
	return string(SendGarbage)
}

// CancelGarbageMessage reports garbage the client countered on its own board.
type CancelGarbageMessage struct {
	TypeDiscriminator string `json:"type"`
	Amount            *int   `json:"amount" validate:"required,gte=1"`
}

func (m *CancelGarbageMessage) GetDiscriminator() string {
	return string(CancelGarbage)
}

type ActivateSpecialMessage struct {
	TypeDiscriminator string `json:"type"`
	Row               *int   `json:"row" validate:"required,gte=0"`
	Col               *int   `json:"col" validate:"required,gte=0"`
}

func (m *ActivateSpecialMessage) GetDiscriminator() string {
	return string(ActivateSpecial)
}

type ActivateBoosterMessage struct {
	TypeDiscriminator string `json:"type"`
	BoosterID         *int   `json:"booster_id" validate:"required,gte=0"`
}

func (m *ActivateBoosterMessage) GetDiscriminator() string {
	return string(ActivateBooster)
}

type RequestRematchMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *RequestRematchMessage) GetDiscriminator() string {
	return string(RequestRematch)
}

type LeaveGameMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *LeaveGameMessage) GetDiscriminator() string {
	return string(LeaveGame)
}

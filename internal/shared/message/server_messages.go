package message

import (
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
)

type ServerMessageType string

const (
	Connected                ServerMessageType = "Connected"
	Queued                   ServerMessageType = "Queued"
	LeftQueue                ServerMessageType = "LeftQueue"
	MatchFound               ServerMessageType = "MatchFound"
	GameStarted              ServerMessageType = "GameStarted"
	OpponentSwap             ServerMessageType = "OpponentSwap"
	ScoreBroadcast           ServerMessageType = "ScoreUpdate"
	TimeUpdate               ServerMessageType = "TimeUpdate"
	GameOver                 ServerMessageType = "GameOver"
	OpponentDisconnected     ServerMessageType = "OpponentDisconnected"
	OpponentLeft             ServerMessageType = "OpponentLeft"
	IncomingGarbage          ServerMessageType = "IncomingGarbage"
	GarbageCancelled         ServerMessageType = "GarbageCancelled"
	GarbageApplied           ServerMessageType = "GarbageApplied"
	OpponentActivatedSpecial ServerMessageType = "OpponentActivatedSpecial"
	OpponentActivatedBooster ServerMessageType = "OpponentActivatedBooster"
	OpponentRequestedRematch ServerMessageType = "OpponentRequestedRematch"
	RematchAccepted          ServerMessageType = "RematchAccepted"
	RematchExpired           ServerMessageType = "RematchExpired"
	Error                    ServerMessageType = "Error"
)

type GameResult string

const (
	Win  GameResult = "Win"
	Loss GameResult = "Loss"
	Tie  GameResult = "Tie"
)

// ResultFor compares a player's final score against the opponent's.
func ResultFor(own, opponent uint32) GameResult {
	switch {
	case own > opponent:
		return Win
	case own < opponent:
		return Loss
	default:
		return Tie
	}
}

type EndReason string

const (
	TimeExpired   EndReason = "TimeExpired"
	ExplicitLeave EndReason = "ExplicitLeave"
	Disconnect    EndReason = "Disconnect"
)

type ConnectedMessage struct {
	TypeDiscriminator string        `json:"type"`
	PlayerID          uuidstring.ID `json:"player_id"`
}

func (m *ConnectedMessage) GetDiscriminator() string {
	return string(Connected)
}

func NewConnectedMessage(playerID uuidstring.ID) *ConnectedMessage {
	return &ConnectedMessage{TypeDiscriminator: string(Connected), PlayerID: playerID}
}

type QueuedMessage struct {
	TypeDiscriminator string `json:"type"`
	Position          int    `json:"position"`
}

func (m *QueuedMessage) GetDiscriminator() string {
	return string(Queued)
}

func NewQueuedMessage(position int) *QueuedMessage {
	return &QueuedMessage{TypeDiscriminator: string(Queued), Position: position}
}

type LeftQueueMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *LeftQueueMessage) GetDiscriminator() string {
	return string(LeftQueue)
}

func NewLeftQueueMessage() *LeftQueueMessage {
	return &LeftQueueMessage{TypeDiscriminator: string(LeftQueue)}
}

type MatchFoundMessage struct {
	TypeDiscriminator string        `json:"type"`
	GameID            uuidstring.ID `json:"game_id"`
	OpponentID        uuidstring.ID `json:"opponent_id"`
}

func (m *MatchFoundMessage) GetDiscriminator() string {
	return string(MatchFound)
}

func NewMatchFoundMessage(gameID, opponentID uuidstring.ID) *MatchFoundMessage {
	return &MatchFoundMessage{TypeDiscriminator: string(MatchFound), GameID: gameID, OpponentID: opponentID}
}

type GameStartedMessage struct {
	TypeDiscriminator string        `json:"type"`
	GameID            uuidstring.ID `json:"game_id"`
	Duration          int           `json:"duration"`
}

func (m *GameStartedMessage) GetDiscriminator() string {
	return string(GameStarted)
}

func NewGameStartedMessage(gameID uuidstring.ID, durationSeconds int) *GameStartedMessage {
	return &GameStartedMessage{TypeDiscriminator: string(GameStarted), GameID: gameID, Duration: durationSeconds}
}

type OpponentSwapMessage struct {
	TypeDiscriminator string `json:"type"`
	Move
}

func (m *OpponentSwapMessage) GetDiscriminator() string {
	return string(OpponentSwap)
}

func NewOpponentSwapMessage(mv Move) *OpponentSwapMessage {
	return &OpponentSwapMessage{TypeDiscriminator: string(OpponentSwap), Move: mv}
}

// ScoreBroadcastMessage is the server's ScoreUpdate. Scores are relative to the recipient.
type ScoreBroadcastMessage struct {
	TypeDiscriminator string `json:"type"`
	PlayerScore       uint32 `json:"player_score"`
	OpponentScore     uint32 `json:"opponent_score"`
}

func (m *ScoreBroadcastMessage) GetDiscriminator() string {
	return string(ScoreBroadcast)
}

func NewScoreBroadcastMessage(playerScore, opponentScore uint32) *ScoreBroadcastMessage {
	return &ScoreBroadcastMessage{
		TypeDiscriminator: string(ScoreBroadcast),
		PlayerScore:       playerScore,
		OpponentScore:     opponentScore,
	}
}

type TimeUpdateMessage struct {
	TypeDiscriminator string `json:"type"`
	SecondsRemaining  int    `json:"seconds_remaining"`
}

func (m *TimeUpdateMessage) GetDiscriminator() string {
	return string(TimeUpdate)
}

func NewTimeUpdateMessage(secondsRemaining int) *TimeUpdateMessage {
	return &TimeUpdateMessage{TypeDiscriminator: string(TimeUpdate), SecondsRemaining: secondsRemaining}
}

type GameOverMessage struct {
	TypeDiscriminator string     `json:"type"`
	Winner            GameResult `json:"winner"`
	Reason            EndReason  `json:"reason"`
}

func (m *GameOverMessage) GetDiscriminator() string {
	return string(GameOver)
}

func NewGameOverMessage(result GameResult, reason EndReason) *GameOverMessage {
	return &GameOverMessage{TypeDiscriminator: string(GameOver), Winner: result, Reason: reason}
}

type OpponentDisconnectedMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *OpponentDisconnectedMessage) GetDiscriminator() string {
	return string(OpponentDisconnected)
}

func NewOpponentDisconnectedMessage() *OpponentDisconnectedMessage {
	return &OpponentDisconnectedMessage{TypeDiscriminator: string(OpponentDisconnected)}
}

type OpponentLeftMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *OpponentLeftMessage) GetDiscriminator() string {
	return string(OpponentLeft)
}

func NewOpponentLeftMessage() *OpponentLeftMessage {
	return &OpponentLeftMessage{TypeDiscriminator: string(OpponentLeft)}
}

type IncomingGarbageMessage struct {
	TypeDiscriminator string `json:"type"`
	GarbageID         int    `json:"garbage_id"`
	Amount            int    `json:"amount"`
	CancelWindowMs    int64  `json:"cancel_window_ms"`
}

func (m *IncomingGarbageMessage) GetDiscriminator() string {
	return string(IncomingGarbage)
}

func NewIncomingGarbageMessage(garbageID, amount int, cancelWindowMs int64) *IncomingGarbageMessage {
	return &IncomingGarbageMessage{
		TypeDiscriminator: string(IncomingGarbage),
		GarbageID:         garbageID,
		Amount:            amount,
		CancelWindowMs:    cancelWindowMs,
	}
}

type GarbageCancelledMessage struct {
	TypeDiscriminator string        `json:"type"`
	GarbageID         int           `json:"garbage_id"`
	Amount            int           `json:"amount"`
	TargetID          uuidstring.ID `json:"target_id"`
}

func (m *GarbageCancelledMessage) GetDiscriminator() string {
	return string(GarbageCancelled)
}

func NewGarbageCancelledMessage(garbageID, amount int, target uuidstring.ID) *GarbageCancelledMessage {
	return &GarbageCancelledMessage{
		TypeDiscriminator: string(GarbageCancelled),
		GarbageID:         garbageID,
		Amount:            amount,
		TargetID:          target,
	}
}

type GarbageAppliedMessage struct {
	TypeDiscriminator string        `json:"type"`
	GarbageID         int           `json:"garbage_id"`
	Amount            int           `json:"amount"`
	TargetID          uuidstring.ID `json:"target_id"`
}

func (m *GarbageAppliedMessage) GetDiscriminator() string {
	return string(GarbageApplied)
}

func NewGarbageAppliedMessage(garbageID, amount int, target uuidstring.ID) *GarbageAppliedMessage {
	return &GarbageAppliedMessage{
		TypeDiscriminator: string(GarbageApplied),
		GarbageID:         garbageID,
		Amount:            amount,
		TargetID:          target,
	}
}

type OpponentActivatedSpecialMessage struct {
	TypeDiscriminator string `json:"type"`
	Row               int    `json:"row"`
	Col               int    `json:"col"`
}

func (m *OpponentActivatedSpecialMessage) GetDiscriminator() string {
	return string(OpponentActivatedSpecial)
}

func NewOpponentActivatedSpecialMessage(row, col int) *OpponentActivatedSpecialMessage {
	return &OpponentActivatedSpecialMessage{TypeDiscriminator: string(OpponentActivatedSpecial), Row: row, Col: col}
}

type OpponentActivatedBoosterMessage struct {
	TypeDiscriminator string `json:"type"`
	BoosterID         int    `json:"booster_id"`
}

func (m *OpponentActivatedBoosterMessage) GetDiscriminator() string {
	return string(OpponentActivatedBooster)
}

func NewOpponentActivatedBoosterMessage(boosterID int) *OpponentActivatedBoosterMessage {
	return &OpponentActivatedBoosterMessage{TypeDiscriminator: string(OpponentActivatedBooster), BoosterID: boosterID}
}

type OpponentRequestedRematchMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *OpponentRequestedRematchMessage) GetDiscriminator() string {
	return string(OpponentRequestedRematch)
}

func NewOpponentRequestedRematchMessage() *OpponentRequestedRematchMessage {
	return &OpponentRequestedRematchMessage{TypeDiscriminator: string(OpponentRequestedRematch)}
}

type RematchAcceptedMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *RematchAcceptedMessage) GetDiscriminator() string {
	return string(RematchAccepted)
}

func NewRematchAcceptedMessage() *RematchAcceptedMessage {
	return &RematchAcceptedMessage{TypeDiscriminator: string(RematchAccepted)}
}

type RematchExpiredMessage struct {
	TypeDiscriminator string `json:"type"`
}

func (m *RematchExpiredMessage) GetDiscriminator() string {
	return string(RematchExpired)
}

func NewRematchExpiredMessage() *RematchExpiredMessage {
	return &RematchExpiredMessage{TypeDiscriminator: string(RematchExpired)}
}

type ErrorMessage struct {
	TypeDiscriminator string `json:"type"`
	Message           string `json:"message"`
}

func (m *ErrorMessage) GetDiscriminator() string {
	return string(Error)
}

func NewErrorMessage(msg string) *ErrorMessage {
	return &ErrorMessage{TypeDiscriminator: string(Error), Message: msg}
}

package protocol

import "encoding/json"

// Client -> Server events
const (
	EventCreateRoom    = "create_room"
	EventJoinRoom      = "join_room"
	EventLeaveRoom     = "leave_room"
	EventStartGame     = "start_game"
	EventDeclare       = "declare"
	EventPlay          = "play"
	EventAcceptRedeal  = "accept_redeal"
	EventDeclineRedeal = "decline_redeal"
	EventAddBot        = "add_bot"
	EventRemoveBot     = "remove_bot"
	EventPing          = "ping"
	EventClientReady   = "client_ready"
)

// Server -> Client events
const (
	EventConnected          = "connected"
	EventRoomCreated        = "room_created"
	EventRoomJoined         = "room_joined"
	EventPlayerJoined       = "player_joined"
	EventPlayerLeft         = "player_left"
	EventRoomListUpdate     = "room_list_update"
	EventPhaseChange        = "phase_change"
	EventHandUpdated        = "hand_updated"
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerReconnected  = "player_reconnected"
	EventError              = "error"
	EventPong               = "pong"
	EventSyncResponse       = "sync_response"
)

// Client -> Server payloads

type CreateRoomData struct {
	RoomName   string `json:"roomName"`
	PlayerName string `json:"playerName"`
	// Private rooms are joinable by code but hidden from the lobby listing.
	Private bool `json:"private,omitempty"`
}

type JoinRoomData struct {
	RoomName   string `json:"roomName,omitempty"`
	PlayerName string `json:"playerName"`
}

type DeclareData struct {
	Value int `json:"value"`
}

type PlayData struct {
	PieceIDs []string `json:"pieceIds"`
}

type AddBotData struct {
	Position int `json:"position"`
}

type RemoveBotData struct {
	Position int `json:"position"`
}

type PingData struct {
	ClientTime int64 `json:"clientTime"`
}

type ClientReadyData struct {
	PlayerName   string `json:"playerName"`
	Reconnecting bool   `json:"reconnecting,omitempty"`
	RoomID       string `json:"roomId,omitempty"`
	LastSeenSeq  uint64 `json:"lastSeenSeq,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// Server -> Client payloads

type ConnectedData struct {
	ConnectionID string `json:"connectionId"`
	RoomID       string `json:"roomId,omitempty"`
	PlayerName   string `json:"playerName,omitempty"`
	Reconnected  bool   `json:"reconnected"`
	SessionToken string `json:"sessionToken,omitempty"`
}

type RoomCreatedData struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type RoomJoinedData struct {
	RoomID    string          `json:"roomId"`
	RoomName  string          `json:"roomName"`
	Position  int             `json:"position"`
	Players   []SeatInfo      `json:"players"`
	GameState json.RawMessage `json:"gameState,omitempty"`
}

type SeatInfo struct {
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
	IsBot    bool   `json:"isBot"`
	IsHost   bool   `json:"isHost"`
	Score    int    `json:"score"`
	Occupied bool   `json:"occupied"`
}

type PlayerJoinedData struct {
	PlayerName string `json:"playerName"`
	Position   int    `json:"position"`
	IsBot      bool   `json:"isBot"`
}

type PlayerLeftData struct {
	PlayerName string `json:"playerName"`
	NewHost    string `json:"newHost,omitempty"`
}

type RoomSummary struct {
	RoomID    string `json:"roomId"`
	Host      string `json:"host"`
	Occupancy int    `json:"occupancy"`
	MaxSeats  int    `json:"maxPlayers"`
	CreatedAt string `json:"createdAt"`
}

type RoomListUpdateData struct {
	Rooms []RoomSummary `json:"rooms"`
}

type PhaseChangeData struct {
	Phase          string          `json:"phase"`
	PhaseData      json.RawMessage `json:"phaseData"`
	GameState      json.RawMessage `json:"gameState"`
	Reason         string          `json:"reason,omitempty"`
	SequenceNumber uint64          `json:"sequenceNumber"`
}

type PieceInfo struct {
	ID    string `json:"id"`
	Rank  string `json:"rank"`
	Color string `json:"color"`
	Point int    `json:"point"`
}

type HandUpdatedData struct {
	Pieces []PieceInfo `json:"pieces"`
	Count  int         `json:"count"`
}

type PlayerDisconnectedData struct {
	Player         string `json:"player"`
	AIActivated    bool   `json:"aiActivated"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type PlayerReconnectedData struct {
	Player string `json:"player"`
}

type PongData struct {
	ClientTime int64 `json:"clientTime"`
	ServerTime int64 `json:"serverTime"`
}

type SyncResponseData struct {
	CurrentSequence uint64            `json:"currentSequence"`
	MissedEvents    []json.RawMessage `json:"missedEvents"`
	FullState       json.RawMessage   `json:"fullState,omitempty"`
}

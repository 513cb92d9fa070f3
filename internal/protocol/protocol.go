// Package protocol defines the control messages exchanged over the websocket.
// Replication frames travel separately as binary msgpack netsync.Frames.
package protocol

import "encoding/json"

// Client -> Server message types
const (
	MsgStartGame     = "start_game"
	MsgPlaceBuilding = "place_building"
	MsgSpawnUnit     = "spawn_unit"
	MsgSetTarget     = "set_target"
	MsgRegister      = "register"
	MsgLogin         = "login"
	MsgAuth          = "auth" // resume with a stored token
)

// Server -> Client message types
const (
	MsgWelcome  = "welcome"
	MsgRejected = "rejected" // a remote operation failed validation
	MsgScene    = "scene"
	MsgError    = "error"
	MsgAuthOK   = "auth_ok"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; D stays raw until the type is known
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

type PlaceBuildingMsg struct {
	ID int32   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

type SpawnUnitMsg struct {
	ID int32 `json:"id"`
}

type SetTargetMsg struct {
	Unit   uint32 `json:"unit"`
	Target uint32 `json:"target"`
}

type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthMsg struct {
	Token string `json:"token"`
}

// WelcomeMsg tells a client its connection id, the net id of its player
// entity and the active scene.
type WelcomeMsg struct {
	Conn   int32  `json:"conn"`
	Player uint32 `json:"player"`
	Scene  string `json:"scene"`
}

type RejectedMsg struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

type SceneMsg struct {
	Name string `json:"name"`
}

type ErrorMsg struct {
	Msg string `json:"msg"`
}

type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"pid"`
}

// Encode marshals an envelope of type t.
func Encode(t string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{T: t, Data: data})
}

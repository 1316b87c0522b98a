// Package controlplane implements the daemon's WebSocket control
// channel: the UI (or a CLI diagnostic) connects, receives a Connected
// push with the current target list, and both sides exchange tagged
// JSON messages. Grounded on the original client's
// websocket_handler.rs; the tagged-union shape is carried over, the
// untagged ResultMessageData enum is emulated with a discriminated
// wrapper since Go lacks serde's untagged-enum support.
package controlplane

import (
	"encoding/json"

	"saberd/internal/model"
)

type MessageType string

const (
	TypeConnected      MessageType = "Connected"
	TypeQueueMap       MessageType = "QueueMap"
	TypeUpdateConfig   MessageType = "UpdateConfig"
	TypeSetupOneClick  MessageType = "SetupOneClick"
	TypeInstallMaps    MessageType = "InstallMaps"
	TypeInstallMods    MessageType = "InstallMods"
	TypeResultResponse MessageType = "ResultResponse"
)

// Envelope is the outer {"type": ..., "data": ...} shape every message
// uses, matching the original's tagged enum.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

type ConnectedData struct {
	Targets []WireTarget `json:"targets"`
}

type WireTarget struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Mode model.InstallMode `json:"mode"`
}

type QueueMapData struct {
	MapID     string   `json:"mapId"`
	TargetIDs []string `json:"targetIds"`
}

type UpdateConfigData struct {
	Targets []model.Target `json:"targets"`
}

// InstallMapsData requests a batch map install by catalog id, spec.md
// §4.8's InstallMaps([id,…]), fanned out to every configured target.
type InstallMapsData struct {
	IDs []string `json:"ids"`
}

// PCModInstall is the wire shape of one entry in InstallMods([...]):
// either a DLL dropped into Plugins/ or a zip extracted under an
// optional sub-path.
type PCModInstall struct {
	ModType string `json:"modType"`
	Name    string `json:"name,omitempty"`
	SubPath string `json:"subPath,omitempty"`
	URL     string `json:"url"`
}

type InstallModsData struct {
	Mods []PCModInstall `json:"mods"`
}

// KindSimple marks a ResultResponseData carrying spec.md §4.8's
// Simple(message) variant, used for the SetupOneClick reply.
const KindSimple = "simple"

// ResultResponseData carries one installer result. It stands in for the
// original's untagged ResultMessageData enum (Success | AlreadyInstalled
// | Error) by always including a Kind discriminator instead of relying
// on JSON shape alone.
type ResultResponseData struct {
	TargetID string `json:"targetId"`
	Hash     string `json:"hash"`
	Kind     string `json:"kind"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}

func Encode(t MessageType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: raw})
}

func resultResponseFrom(res model.InstallerResult) ResultResponseData {
	d := ResultResponseData{TargetID: res.TargetID, Hash: res.Hash, Kind: string(res.Kind)}
	if res.Err != nil {
		d.Error = res.Err.Error()
	}
	return d
}

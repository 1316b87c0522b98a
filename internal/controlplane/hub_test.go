package controlplane

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"saberd/internal/model"
)

type fakeHandler struct {
	queueMapCalls []QueueMapData
	updateCalls   []UpdateConfigData
}

func (f *fakeHandler) HandleQueueMap(ctx context.Context, data QueueMapData) error {
	f.queueMapCalls = append(f.queueMapCalls, data)
	return nil
}

func (f *fakeHandler) HandleUpdateConfig(ctx context.Context, data UpdateConfigData) ([]model.Target, error) {
	f.updateCalls = append(f.updateCalls, data)
	return data.Targets, nil
}

func (f *fakeHandler) HandleSetupOneClick(ctx context.Context) (string, error) {
	return "ok", nil
}

func (f *fakeHandler) HandleInstallMaps(ctx context.Context, ids []string) error {
	return nil
}

func (f *fakeHandler) HandleInstallMods(ctx context.Context, mods []model.PCModRequest) error {
	return nil
}

func dialHub(t *testing.T, hub *Hub, targets []model.Target) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub.ServeWS(targets))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/pipe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubPushesConnectedOnConnect(t *testing.T) {
	hub := NewHub(nil, &fakeHandler{})
	conn := dialHub(t, hub, []model.Target{{ID: "t1", Name: "PC"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeConnected {
		t.Fatalf("expected a Connected message first, got %s", env.Type)
	}
	var data ConnectedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Targets) != 1 || data.Targets[0].ID != "t1" {
		t.Fatalf("unexpected targets in Connected push: %+v", data.Targets)
	}
}

func TestHubRoutesQueueMapToHandler(t *testing.T) {
	h := &fakeHandler{}
	hub := NewHub(nil, h)
	conn := dialHub(t, hub, nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatal(err)
	}

	b, err := Encode(TypeQueueMap, QueueMapData{MapID: "abc", TargetIDs: []string{"t1"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.queueMapCalls) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(h.queueMapCalls) != 1 || h.queueMapCalls[0].MapID != "abc" {
		t.Fatalf("expected HandleQueueMap to be called with mapId abc, got %+v", h.queueMapCalls)
	}
}

func TestHubBroadcastReachesAllConnectedClients(t *testing.T) {
	hub := NewHub(nil, &fakeHandler{})
	connA := dialHub(t, hub, nil)
	connB := dialHub(t, hub, nil)

	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	connB.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := connA.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := connB.ReadMessage(); err != nil {
		t.Fatal(err)
	}

	hub.Broadcast(model.InstallerResult{TargetID: "t1", Hash: "h1", Kind: model.ResultSuccess})

	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatal(err)
		}
		if env.Type != TypeResultResponse {
			t.Fatalf("expected a ResultResponse broadcast, got %s", env.Type)
		}
	}
}

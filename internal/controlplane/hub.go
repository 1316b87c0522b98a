package controlplane

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"saberd/internal/config"
	"saberd/internal/logging"
	"saberd/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler is the interface the hub calls back into for inbound
// QueueMap, UpdateConfig, SetupOneClick, InstallMaps and InstallMods
// requests; the daemon's top-level wiring implements it.
type Handler interface {
	HandleQueueMap(ctx context.Context, data QueueMapData) error
	HandleUpdateConfig(ctx context.Context, data UpdateConfigData) ([]model.Target, error)
	HandleSetupOneClick(ctx context.Context) (string, error)
	HandleInstallMaps(ctx context.Context, ids []string) error
	HandleInstallMods(ctx context.Context, mods []model.PCModRequest) error
}

// Hub fans outbound messages out to every connected client and routes
// inbound messages to Handler, replacing the original's single shared
// broadcast channel (Go has no broadcast-channel primitive) with a
// registry of per-connection send channels.
type Hub struct {
	log     *logging.Logger
	handler Handler

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log *logging.Logger, handler Handler) *Hub {
	return &Hub{log: log, handler: handler, clients: make(map[*client]struct{})}
}

// Broadcast publishes one ResultResponse to every connected client.
func (h *Hub) Broadcast(res model.InstallerResult) {
	b, err := Encode(TypeResultResponse, resultResponseFrom(res))
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
		}
	}
}

// ServeWS returns a handler that upgrades the connection and runs its read/write loops until
// it disconnects.
func (h *Hub) ServeWS(targets []model.Target) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &client{conn: conn, send: make(chan []byte, 32)}
		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()

		go h.writeLoop(c)

		// Push the initial Connected message shortly after connect,
		// matching the 250ms delay in the original's webserver.rs.
		go func() {
			time.Sleep(250 * time.Millisecond)
			wire := make([]WireTarget, 0, len(targets))
			for _, t := range targets {
				wire = append(wire, WireTarget{ID: t.ID, Name: t.Name, Mode: t.Mode})
			}
			if b, err := Encode(TypeConnected, ConnectedData{Targets: wire}); err == nil {
				select {
				case c.send <- b:
				default:
				}
			}
		}()

		h.readLoop(r.Context(), c)
	}
}

// reply sends one message to a single client, dropping it if the
// client's send buffer is full rather than blocking the read loop.
func (h *Hub) reply(c *client, t MessageType, data any) {
	b, err := Encode(t, data)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for b := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer h.disconnect(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := decode(raw, &env); err != nil {
			if h.log != nil {
				h.log.WarnfThrottled("ws-decode", time.Second, "could not decode inbound message: %v", err)
			}
			continue
		}
		switch env.Type {
		case TypeQueueMap:
			var data QueueMapData
			if err := decode(env.Data, &data); err != nil {
				continue
			}
			if err := h.handler.HandleQueueMap(ctx, data); err != nil {
				if h.log != nil {
					h.log.Warnf("queue map request failed: %v", err)
				}
				h.reply(c, TypeResultResponse, ResultResponseData{Hash: data.MapID, Kind: string(model.ResultError), Error: err.Error()})
			}
		case TypeUpdateConfig:
			var data UpdateConfigData
			if err := decode(env.Data, &data); err != nil {
				continue
			}
			if _, err := h.handler.HandleUpdateConfig(ctx, data); err != nil && h.log != nil {
				h.log.Warnf("update config request failed: %v", err)
			}
		case TypeSetupOneClick:
			msg, err := h.handler.HandleSetupOneClick(ctx)
			if err != nil {
				if h.log != nil {
					h.log.Warnf("setup one-click failed: %v", err)
				}
				h.reply(c, TypeResultResponse, ResultResponseData{Kind: string(model.ResultError), Error: err.Error()})
				continue
			}
			h.reply(c, TypeResultResponse, ResultResponseData{Kind: KindSimple, Message: msg})
		case TypeInstallMaps:
			var data InstallMapsData
			if err := decode(env.Data, &data); err != nil {
				continue
			}
			if err := h.handler.HandleInstallMaps(ctx, data.IDs); err != nil && h.log != nil {
				h.log.Warnf("install maps request failed: %v", err)
			}
		case TypeInstallMods:
			var data InstallModsData
			if err := decode(env.Data, &data); err != nil {
				continue
			}
			mods := make([]model.PCModRequest, 0, len(data.Mods))
			for _, w := range data.Mods {
				kind := model.ModKindZip
				if w.ModType == string(model.ModKindDLL) {
					kind = model.ModKindDLL
				}
				mods = append(mods, model.PCModRequest{Kind: kind, Name: w.Name, SubPath: w.SubPath, URL: w.URL})
			}
			if err := h.handler.HandleInstallMods(ctx, mods); err != nil && h.log != nil {
				h.log.Warnf("install mods request failed: %v", err)
			}
		default:
			if h.log != nil {
				h.log.WarnfThrottled("ws-unknown-type", time.Second, "unknown message type %q", env.Type)
			}
		}
	}
}

func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// BaseURLFromConfig is a small helper the CLI uses to build the /pipe
// dial URL from the daemon's listen address.
func BaseURLFromConfig(cfg *config.Config) string {
	return "ws://" + cfg.General.ListenAddr + "/pipe"
}

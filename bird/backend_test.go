package bird_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/philippseith/gobird/bird"
	"github.com/stretchr/testify/require"
)

// frame is an outbound frame as the backend sees it.
type frame map[string]any

func (f frame) str(key string) string {
	s, _ := f[key].(string)
	return s
}

// backend is an in-process stand-in for the bird backend. It records every
// frame it receives and answers the actions it has a reply for.
type backend struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	ws        *websocket.Conn
	replies   map[string]func(f frame) []any
	counts    map[string]int
	mx        sync.Mutex
	mxWrite   sync.Mutex
	frames    chan frame
	connected chan struct{}
	once      sync.Once
}

func newBackend(t *testing.T) *backend {
	b := &backend{
		t:         t,
		replies:   map[string]func(f frame) []any{},
		counts:    map[string]int{},
		frames:    make(chan frame, 256),
		connected: make(chan struct{}),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.close)
	return b
}

func (b *backend) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.t.Logf("upgrade: %v", err)
		return
	}
	b.mx.Lock()
	b.ws = ws
	b.mx.Unlock()
	b.once.Do(func() { close(b.connected) })

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f := frame{}
		if err := json.Unmarshal(data, &f); err != nil {
			b.t.Logf("backend: %v", err)
			continue
		}
		action := f.str("action")

		b.mx.Lock()
		b.counts[action]++
		reply := b.replies[action]
		b.mx.Unlock()

		select {
		case b.frames <- f:
		default:
		}
		if reply != nil {
			go func() {
				for _, v := range reply(f) {
					b.send(v)
				}
			}()
		}
	}
}

// handle registers the replies to action. fn may block to delay them.
func (b *backend) handle(action bird.Action, fn func(f frame) []any) {
	b.mx.Lock()
	defer b.mx.Unlock()

	b.replies[string(action)] = fn
}

func (b *backend) count(action bird.Action) int {
	b.mx.Lock()
	defer b.mx.Unlock()

	return b.counts[string(action)]
}

func (b *backend) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.t.Errorf("backend: %v", err)
		return
	}
	b.sendRaw(data)
}

func (b *backend) sendRaw(data []byte) {
	b.mx.Lock()
	ws := b.ws
	b.mx.Unlock()
	if ws == nil {
		return
	}

	b.mxWrite.Lock()
	defer b.mxWrite.Unlock()

	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		b.t.Logf("backend: %v", err)
	}
}

func (b *backend) heartbeat(state bird.HeartbeatState) {
	b.send(map[string]any{"id": botID, "action": bird.ActionHeartbeat, "state": state})
}

// next returns the next received frame with the given action.
func (b *backend) next(action bird.Action) frame {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-b.frames:
			if f.str("action") == string(action) {
				return f
			}
		case <-timeout:
			b.t.Fatalf("backend: no %s frame", action)
			return nil
		}
	}
}

// drop closes the websocket from the backend side.
func (b *backend) drop() {
	b.mx.Lock()
	defer b.mx.Unlock()

	if b.ws != nil {
		_ = b.ws.Close()
	}
}

func (b *backend) close() {
	b.drop()
	b.server.Close()
}

func dial(t *testing.T, b *backend, options ...bird.ConnOption) bird.Conn {
	conn, err := bird.Dial(context.Background(), b.URL(), botID, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func contactList(payloads ...bird.ContactPayload) bird.ContactList {
	return bird.ContactList{
		ID:     botID,
		List:   payloads,
		Type:   bird.TypeIOS,
		Action: bird.ActionContactList,
	}
}

func contact(id string, cType bird.ContactType) bird.ContactPayload {
	return bird.ContactPayload{
		CType: cType,
		ID:    botID + "$" + id,
		Nick:  "nick " + id,
		Type:  bird.TypeIOS,
	}
}

func roomMemberList(roomID string, memberIDs ...string) bird.RoomMemberList {
	list := bird.RoomMemberList{
		ID:     botID,
		UID:    roomID,
		Type:   bird.TypeIOS,
		Action: bird.ActionRoomMember,
	}
	for _, id := range memberIDs {
		list.List = append(list.List, bird.RoomMemberPayload{
			WechatID: botID + "$" + id,
			Nick:     "member " + id,
		})
	}
	return list
}

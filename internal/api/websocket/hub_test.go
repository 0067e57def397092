package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenControllerCore/internal/auth"
	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T, authenticator *auth.Authenticator) (*Hub, string) {
	t.Helper()

	hub := NewHub(zaptest.NewLogger(t), authenticator)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal %q: %v", data, err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, url := startHub(t, nil)

	connected := make(chan struct{}, 1)
	hub.OnConnect(func() { connected <- struct{}{} })

	conn := dial(t, url)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect not called")
	}

	hub.Broadcast(NewEventMessage(messaging.EventTypeButton, messaging.Event{
		Channel: 1, Index: 60, Value: 127, Message: midi.MessageNoteOn,
	}))

	msg := readMessage(t, conn)
	if msg["type"] != string(MessageTypeEvent) {
		t.Fatalf("type = %v", msg["type"])
	}
	data := msg["data"].(map[string]any)
	if data["category"] != "BUTTON" || data["index"] != float64(60) || data["value"] != float64(127) {
		t.Errorf("data = %v", data)
	}
}

func TestMIDIInput(t *testing.T) {
	hub, url := startHub(t, nil)

	received := make(chan []byte, 1)
	hub.OnMIDIIn(func(raw []byte) { received <- raw })

	conn := dial(t, url)
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	if err := conn.WriteJSON(map[string]string{"type": "midi_in", "bytes": "c003"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	select {
	case raw := <-received:
		if len(raw) != 2 || raw[0] != 0xC0 || raw[1] != 0x03 {
			t.Errorf("raw = % X", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("MIDI input not delivered")
	}
}

func TestAuthRequired(t *testing.T) {
	jwtHandler := auth.NewJWTHandler("secret")
	hub, url := startHub(t, auth.NewAuthenticator(jwtHandler, true))

	conn := dial(t, url)
	if err := conn.WriteJSON(map[string]string{"type": "midi_in", "bytes": "f8"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readMessage(t, conn); msg["type"] != string(MessageTypeAuthFailed) {
		t.Errorf("type = %v, want auth_failed", msg["type"])
	}
	if hub.GetClientCount() != 0 {
		t.Error("unauthenticated client registered")
	}

	token, err := jwtHandler.GenerateAccessToken("monitor", "operator", time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	conn = dial(t, url)
	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readMessage(t, conn); msg["type"] != string(MessageTypeAuthSuccess) {
		t.Errorf("type = %v, want auth_success", msg["type"])
	}
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })
}

func TestAuthFailureFlushedBeforeClose(t *testing.T) {
	_, url := startHub(t, auth.NewAuthenticator(auth.NewJWTHandler("secret"), true))

	for i := 0; i < 5; i++ {
		conn := dial(t, url)
		if err := conn.WriteJSON(map[string]string{"type": "auth", "token": "garbage"}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}

		if msg := readMessage(t, conn); msg["type"] != string(MessageTypeAuthFailed) {
			t.Fatalf("attempt %d: type = %v, want auth_failed", i, msg["type"])
		}

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("attempt %d: err = %v, want normal closure", i, err)
		}
	}
}

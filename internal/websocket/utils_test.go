package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

func dialTestServer(t *testing.T, serve func(*Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer raw.Close()
		serve(Wrap(raw))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Two write paths share every attempt-stream connection: the engine event
// pump and the read-loop acknowledgements. The wrapper must serialize them;
// gorilla/websocket permits only one writer at a time.
func TestConnSerializesConcurrentWriters(t *testing.T) {
	const perWriter = 50

	served := make(chan struct{})
	client := dialTestServer(t, func(conn *Conn) {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := conn.WriteTyped(TickResponse{Event: EventTick, RemainingSeconds: i}); err != nil {
					t.Errorf("tick write: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := conn.WriteTyped(SavedResponse{Event: EventSaved, QuestionID: int64(i)}); err != nil {
					t.Errorf("saved write: %v", err)
					return
				}
			}
		}()
		wg.Wait()
		close(served)
	})

	// Every frame must arrive as intact JSON with a known event tag.
	got := map[Event]int{}
	for i := 0; i < 2*perWriter; i++ {
		var frame struct {
			Event Event `json:"event"`
		}
		if err := client.ReadJSON(&frame); err != nil {
			t.Fatalf("frame %d corrupted: %v", i, err)
		}
		got[frame.Event]++
	}
	if got[EventTick] != perWriter || got[EventSaved] != perWriter {
		t.Errorf("frames = %v, want %d of each", got, perWriter)
	}
	<-served
}

func TestConnWriteError(t *testing.T) {
	client := dialTestServer(t, func(conn *Conn) {
		if err := conn.WriteError("save failed"); err != nil {
			t.Errorf("WriteError: %v", err)
		}
	})

	var frame ErrorResponse
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Event != EventError || frame.Error != "save failed" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestConnReadJSON(t *testing.T) {
	received := make(chan RequestPayload, 1)
	client := dialTestServer(t, func(conn *Conn) {
		var msg RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("ReadJSON: %v", err)
			return
		}
		received <- msg
	})

	if err := client.WriteJSON(RequestPayload{Action: ActionAdvance, Delta: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := <-received
	if msg.Action != ActionAdvance || msg.Delta != 1 {
		t.Errorf("message = %+v", msg)
	}
}

package broadcast

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestRedisRelay_Handle(t *testing.T) {
	local := newTestBroadcaster(10)
	sub := local.Subscribe("playback")

	relay := newRelay(nil, local, []string{"playback", "scroll"}, log.New(os.Stderr))

	foreign, _ := json.Marshal(envelope{Origin: "other-instance", Payload: json.RawMessage(`{"lastPlayedIndex":4}`)})
	own, _ := json.Marshal(envelope{Origin: relay.Origin(), Payload: json.RawMessage(`{"lastPlayedIndex":5}`)})

	relay.handle("tts:playback", string(own))
	relay.handle("tts:playback", "not json")
	relay.handle("other:playback", string(foreign))
	relay.handle("tts:playback", string(foreign))

	payload, ok, err := sub.Next(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("Next = ok %v, err %v; want a relayed payload", ok, err)
	}
	if string(payload) != `{"lastPlayedIndex":4}` {
		t.Errorf("got %s, want the foreign payload", payload)
	}

	if _, ok, _ := sub.Next(context.Background(), 20*time.Millisecond); ok {
		t.Error("received more than the one foreign payload")
	}
}

func TestRedisRelay_UnreachableServer(t *testing.T) {
	if _, err := NewRedisRelay("127.0.0.1:1", newTestBroadcaster(1), []string{"playback"}, log.New(os.Stderr)); err == nil {
		t.Error("NewRedisRelay succeeded against a closed port")
	}
}

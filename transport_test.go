package rpcproxy

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/kekxv/rpc-proxy-framework/types"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	mc := NewMessageConn(server)
	done := make(chan error, 1)
	go func() {
		done <- mc.WriteJSON(types.Response{RequestID: "1", Status: types.StatusSuccess, Data: struct{}{}})
	}()

	var header [4]byte
	if _, err := io.ReadFull(client, header[:]); err != nil {
		t.Fatal(err)
	}
	length := binary.BigEndian.Uint32(header[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(client, body); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	if int(length) != len(body) {
		t.Fatalf("declared %d bytes, read %d", length, len(body))
	}
	var resp types.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("frame body is not JSON: %v", err)
	}
	if resp.RequestID != "1" || resp.Status != types.StatusSuccess {
		t.Errorf("decoded %+v", resp)
	}
}

func TestReadFrameShortReads(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte(`{"command":"x","request_id":"1","payload":{}}`)
	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
		_, _ = client.Write(header[:2])
		_, _ = client.Write(header[2:])
		// Dribble the body a few bytes at a time.
		for i := 0; i < len(payload); i += 5 {
			end := i + 5
			if end > len(payload) {
				end = len(payload)
			}
			_, _ = client.Write(payload[i:end])
		}
	}()

	mc := NewMessageConn(server)
	frame, err := mc.ReadFrame(1 << 20)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(frame) != string(payload) {
		t.Errorf("frame = %q", frame)
	}
}

func TestReadFrameCeiling(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 1<<30)
		_, _ = client.Write(header[:])
	}()

	mc := NewMessageConn(server)
	_, err := mc.ReadFrame(1 << 20)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("error = %v, want ErrFrameTooLarge", err)
	}
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	mc := NewMessageConn(server)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = mc.SendEvent(types.EventInvokeCallback, types.InvokeCallbackPayload{CallbackID: "cb"})
			}
		}()
	}

	reader := NewMessageConn(client)
	for i := 0; i < writers*perWriter; i++ {
		frame, err := reader.ReadFrame(1 << 20)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		var ev types.Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			t.Fatalf("frame %d corrupt: %v", i, err)
		}
		if ev.Event != types.EventInvokeCallback {
			t.Fatalf("frame %d: event %q", i, ev.Event)
		}
	}
	wg.Wait()
}

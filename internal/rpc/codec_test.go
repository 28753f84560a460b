package rpc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbridge/symbridge/internal/logging"
)

func testLogger() logging.Logger {
	return logging.New(logging.Config{})
}

// pipePair returns two connected in-memory duplex ends, modeled on how the
// supervisor wires a Codec to a subprocess's stdin/stdout pipes.
func pipePair() (clientSide io.ReadWriteCloser, serverSide io.ReadWriteCloser) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	return rwc{cr, cw}, rwc{sr, sw}
}

type rwc struct {
	io.Reader
	io.Writer
}

func (rwc) Close() error { return nil }

func TestCodec_Call_RoundTrip(t *testing.T) {
	client, server := pipePair()
	codec := NewCodec(client, client, FramingContentLength, testLogger())
	defer codec.Close(nil)

	go func() {
		fr := newFrameReader(server, FramingContentLength)
		fw := &frameWriter{w: server, framing: FramingContentLength}
		msg, err := fr.readMessage()
		if err != nil {
			return
		}
		resp, _ := newResponse(*msg.ID, map[string]string{"ok": "yes"})
		_ = fw.writeMessage(resp)
	}()

	var result map[string]string
	err := codec.Call(context.Background(), "ping", nil, &result)
	require.NoError(t, err)
	assert.Equal(t, "yes", result["ok"])
}

func TestCodec_Call_TimesOutWithoutResponse(t *testing.T) {
	client, _ := pipePair()
	codec := NewCodec(client, client, FramingContentLength, testLogger())
	defer codec.Close(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := codec.Call(ctx, "slow", nil, nil)
	require.Error(t, err)
}

func TestCodec_Call_ServerErrorResponse(t *testing.T) {
	client, server := pipePair()
	codec := NewCodec(client, client, FramingContentLength, testLogger())
	defer codec.Close(nil)

	go func() {
		fr := newFrameReader(server, FramingContentLength)
		fw := &frameWriter{w: server, framing: FramingContentLength}
		msg, err := fr.readMessage()
		if err != nil {
			return
		}
		_ = fw.writeMessage(newErrorResponse(*msg.ID, -32000, "something broke"))
	}()

	err := codec.Call(context.Background(), "boom", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something broke")
}

func TestCodec_Notify_NoResponseExpected(t *testing.T) {
	client, server := pipePair()
	codec := NewCodec(client, client, FramingContentLength, testLogger())
	defer codec.Close(nil)

	done := make(chan struct{})
	go func() {
		fr := newFrameReader(server, FramingContentLength)
		msg, err := fr.readMessage()
		if err == nil {
			assert.Equal(t, "textDocument/didOpen", msg.Method)
			assert.True(t, msg.IsNotification())
		}
		close(done)
	}()

	require.NoError(t, codec.Notify(context.Background(), "textDocument/didOpen", map[string]string{"uri": "file:///a"}))
	<-done
}

func TestCodec_DispatchesServerNotification(t *testing.T) {
	client, server := pipePair()
	codec := NewCodec(client, client, FramingContentLength, testLogger())
	defer codec.Close(nil)

	received := make(chan json.RawMessage, 1)
	codec.OnNotification("window/logMessage", func(params json.RawMessage) {
		received <- params
	})

	fw := &frameWriter{w: server, framing: FramingContentLength}
	notif, err := newNotification("window/logMessage", map[string]string{"message": "hi"})
	require.NoError(t, err)
	require.NoError(t, fw.writeMessage(notif))

	select {
	case params := <-received:
		var decoded map[string]string
		require.NoError(t, json.Unmarshal(params, &decoded))
		assert.Equal(t, "hi", decoded["message"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched notification")
	}
}

func TestCodec_DispatchesServerRequest(t *testing.T) {
	client, server := pipePair()
	codec := NewCodec(client, client, FramingContentLength, testLogger())
	defer codec.Close(nil)

	codec.OnRequest("workspace/applyEdit", func(_ context.Context, _ json.RawMessage) (any, error) {
		return map[string]bool{"applied": true}, nil
	})

	fr := newFrameReader(server, FramingContentLength)
	fw := &frameWriter{w: server, framing: FramingContentLength}
	req, err := newRequest(99, "workspace/applyEdit", map[string]string{})
	require.NoError(t, err)
	require.NoError(t, fw.writeMessage(req))

	resp, err := fr.readMessage()
	require.NoError(t, err)
	require.NotNil(t, resp.ID)
	assert.Equal(t, int64(99), *resp.ID)
	assert.Nil(t, resp.Error)
}

func TestCodec_Close_FailsPendingCalls(t *testing.T) {
	client, _ := pipePair()
	codec := NewCodec(client, client, FramingContentLength, testLogger())

	errCh := make(chan error, 1)
	go func() {
		errCh <- codec.Call(context.Background(), "never-answered", nil, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	codec.Close(assert.AnError)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Call did not unblock after Close")
	}
}

package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair returns the server side wrapped in a Conn and the raw client side.
func connPair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()
	serverConn := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- NewConn(ws)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-serverConn:
		t.Cleanup(func() { c.Close(websocket.CloseNormalClosure) })
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
		return nil, nil
	}
}

func TestConn_ReadFrameTimeoutKeepsConnection(t *testing.T) {
	c, client := connPair(t)

	_, _, err := c.ReadFrame(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadTimeout)

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{9}))
	mt, data, err := c.ReadFrame(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{9}, data)
}

func TestConn_SendPreservesOrder(t *testing.T) {
	c, client := connPair(t)

	require.NoError(t, c.TrySend(transcriptEvent("one", 1)))
	require.NoError(t, c.Send(context.Background(), aiResponseEvent("two", 1)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first, second Event
	require.NoError(t, client.ReadJSON(&first))
	require.NoError(t, client.ReadJSON(&second))
	assert.Equal(t, "one", first.Text)
	assert.Equal(t, "two", second.Text)
}

func TestConn_CloseFlushesAndRejectsLaterSends(t *testing.T) {
	c, client := connPair(t)

	require.NoError(t, c.TrySend(pingEvent()))
	require.NoError(t, c.Close(websocket.CloseNormalClosure))
	require.NoError(t, c.Close(websocket.CloseNormalClosure))

	assert.True(t, c.Closed())
	assert.ErrorIs(t, c.Send(context.Background(), pingEvent()), ErrClientClosed)
	assert.ErrorIs(t, c.TrySend(pingEvent()), ErrClientClosed)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, client.ReadJSON(&ev))
	assert.Equal(t, EventPing, ev.Type)

	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestConn_ClosedWhenClientLeaves(t *testing.T) {
	c, client := connPair(t)

	require.NoError(t, client.Close())

	assert.Eventually(t, c.Closed, time.Second, 5*time.Millisecond)
	_, _, err := c.ReadFrame(context.Background(), time.Second)
	assert.Error(t, err)
}

func TestConn_AcceptedSendsAreWrittenDespiteConcurrentClose(t *testing.T) {
	c, client := connPair(t)

	var (
		accepted atomic.Int64
		wg       sync.WaitGroup
		start    = make(chan struct{})
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < 50; i++ {
				var err error
				if i%2 == 0 {
					err = c.Send(context.Background(), transcriptEvent("x", g*100+i))
				} else {
					err = c.TrySend(transcriptEvent("x", g*100+i))
				}
				if err == nil {
					accepted.Add(1)
				}
			}
		}(g)
	}
	close(start)
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Close(websocket.CloseNormalClosure))
	wg.Wait()

	var received int64
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := client.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
		received++
	}
	assert.Equal(t, accepted.Load(), received)
}

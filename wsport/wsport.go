// Package wsport adapts a serial-bridge websocket to the
// io.ReadWriteCloser the link expects, so the stage can sit on a
// remote machine next to a port server instead of a local tty.
package wsport

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const pollInterval = 200 * time.Millisecond

// Conn is one bridge connection. Every websocket frame carries raw
// bytes from the port.
type Conn struct {
	ws     *websocket.Conn
	frames chan []byte
	done   chan struct{}
	closed chan struct{}
	once   sync.Once

	buf []byte
}

// Dial connects to a bridge endpoint that forwards raw port frames.
func Dial(url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		ws:     ws,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Println("ERROR: bridge read:", err)
			}
			return
		}
		select {
		case c.frames <- data:
		case <-c.closed:
			return
		}
	}
}

// Read returns buffered bridge bytes. When nothing arrives within one
// poll interval it returns (0, nil) so the caller's deadline loop
// stays in charge of timing out.
func (c *Conn) Read(p []byte) (int, error) {
	if len(c.buf) == 0 {
		select {
		case data := <-c.frames:
			c.buf = data
		case <-c.done:
			// frames that landed before the bridge went away still
			// get delivered before the error
			select {
			case data := <-c.frames:
				c.buf = data
			default:
				return 0, io.ErrClosedPipe
			}
		case <-time.After(pollInterval):
			return 0, nil
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *Conn) Write(p []byte) (int, error) {
	err := c.ws.WriteMessage(websocket.TextMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.ws.Close()
}

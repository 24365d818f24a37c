package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is a request/response IPC client. Calls on one client are
// serialized; the daemon answers requests on a connection in arrival order,
// so the next response always correlates with the request just sent. The
// request id is still checked to catch protocol violations early.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to the daemon socket (or named pipe on Windows).
func Dial(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := dial(addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Call sends one request and waits for its response. data may be nil. On a
// failed response the returned error is the daemon's *Error.
func (c *Client) Call(method, path string, data any) (json.RawMessage, error) {
	var payload json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}
	msg := Message{
		Method:    method,
		Path:      path,
		Data:      payload,
		RequestID: uuid.NewString(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := WriteMessage(c.conn, msg); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := ReadResponse(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.RequestID != "" && resp.RequestID != msg.RequestID {
		return nil, fmt.Errorf("response id %q does not match request %q", resp.RequestID, msg.RequestID)
	}
	if !resp.Success {
		if resp.Err != nil {
			return nil, resp.Err
		}
		return nil, NewError(CodeInternalError, "request failed without error detail")
	}
	return resp.Data, nil
}

// CallInto performs Call and unmarshals the response data into out.
func (c *Client) CallInto(method, path string, data, out any) error {
	raw, err := c.Call(method, path, data)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

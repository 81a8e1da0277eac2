package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	sudhar "github.com/sudhar-ne/sudhar"
)

// Client sends single requests to a running daemon.
type Client struct {
	SockPath string
	// DialTimeout bounds connecting to the socket. Zero means one second.
	DialTimeout time.Duration
}

// Correct sends a correction request and waits for the response.
func (c *Client) Correct(ctx context.Context, req *sudhar.Request) (*sudhar.Response, error) {
	var resp sudhar.Response
	if err := c.roundTrip(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Config sends a config action ("get", "models", ...) to the daemon.
func (c *Client) Config(ctx context.Context, action string) (*sudhar.ConfigResponse, error) {
	var resp sudhar.ConfigResponse
	if err := c.roundTrip(ctx, &sudhar.ConfigRequest{Action: action}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req, resp any) error {
	timeout := c.DialTimeout
	if timeout == 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", c.SockPath)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.SockPath, err)
	}
	defer conn.Close()

	// Unblock the read when ctx is done.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		return fmt.Errorf("no response from %s", c.SockPath)
	}
	return json.Unmarshal(scanner.Bytes(), resp)
}

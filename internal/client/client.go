// Package client is the dialing and framing helper cmd/amux uses to
// talk to amuxd over its Unix socket.
package client

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/amux-dev/amux/internal/proto"
)

// Client is a connection to amuxd.
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon's Unix socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Conn exposes the raw connection underlying the client.
func (c *Client) Conn() net.Conn { return c.conn }

// Call performs one unary request/response round trip.
func (c *Client) Call(reqType proto.RequestType, id string, payload any) (proto.Response, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return proto.Response{}, err
		}
		raw = data
	}
	if err := proto.WriteRequest(c.conn, proto.Request{Type: reqType, ID: id, Payload: raw}); err != nil {
		return proto.Response{}, fmt.Errorf("client: writing request: %w", err)
	}

	scanner := proto.NewLineScanner(c.conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return proto.Response{}, fmt.Errorf("client: reading response: %w", err)
		}
		return proto.Response{}, fmt.Errorf("client: connection closed before response")
	}
	var resp proto.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return proto.Response{}, fmt.Errorf("client: decoding response: %w", err)
	}
	if !resp.OK && resp.Error != nil {
		return resp, fmt.Errorf("client: %s: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp, nil
}

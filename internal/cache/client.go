package cache

import (
	"encoding/json"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Client implements KV over a Unix socket.
type Client struct {
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) withConn(fn func(conn net.Conn) error) error {
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (c *Client) roundTrip(req Request) (Response, error) {
	var resp Response
	err := c.withConn(func(conn net.Conn) error {
		if err := json.NewEncoder(conn).Encode(&req); err != nil {
			return err
		}
		return json.NewDecoder(conn).Decode(&resp)
	})
	if err != nil {
		return Response{}, err
	}
	if !resp.OK {
		switch resp.Error {
		case ErrNotFound.Error():
			return Response{}, ErrNotFound
		case ErrNoNamespace.Error():
			return Response{}, ErrNoNamespace
		}
		return Response{}, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Get(namespace, key string) ([]byte, error) {
	resp, err := c.roundTrip(Request{Op: "get", Namespace: namespace, Key: key})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), resp.Value...), nil
}

func (c *Client) Put(namespace, key string, value []byte) error {
	_, err := c.roundTrip(Request{Op: "put", Namespace: namespace, Key: key, Value: value})
	return err
}

func (c *Client) Delete(namespace, key string) error {
	_, err := c.roundTrip(Request{Op: "delete", Namespace: namespace, Key: key})
	return err
}

func (c *Client) Match(key string) ([]byte, error) {
	resp, err := c.roundTrip(Request{Op: "match", Key: key})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), resp.Value...), nil
}

func (c *Client) Namespaces() ([]string, error) {
	resp, err := c.roundTrip(Request{Op: "namespaces"})
	if err != nil {
		return nil, err
	}
	return resp.Namespaces, nil
}

func (c *Client) EnsureNamespace(namespace string) error {
	_, err := c.roundTrip(Request{Op: "ensure-ns", Namespace: namespace})
	return err
}

func (c *Client) DropNamespace(namespace string) error {
	_, err := c.roundTrip(Request{Op: "drop-ns", Namespace: namespace})
	return err
}

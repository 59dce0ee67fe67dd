package host

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"
)

const (
	controlDialTimeout = 3 * time.Second
	controlIOTimeout   = 5 * time.Second
)

// ControlClient speaks the control line protocol over one persistent connection.
type ControlClient struct {
	addr string
	conn net.Conn
	r    *bufio.Reader
}

func NewControlClient(addr string) *ControlClient {
	return &ControlClient{addr: strings.TrimSpace(addr)}
}

// Do sends one action and decodes the response data into out when non-nil.
func (c *ControlClient) Do(action, message string, out any) error {
	if err := c.ensureConn(); err != nil {
		return err
	}
	payload, err := json.Marshal(controlRequest{Action: action, Message: message})
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(controlIOTimeout)); err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := c.conn.Write(payload); err != nil {
		c.resetConn()
		return err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(controlIOTimeout)); err != nil {
		return err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.resetConn()
		return err
	}

	var resp struct {
		OK    bool            `json:"ok"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return errors.New(resp.Error)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

func (c *ControlClient) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, controlDialTimeout)
	if err != nil {
		return err
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

func (c *ControlClient) resetConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.r = nil
}

func (c *ControlClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

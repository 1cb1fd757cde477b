package subscriber

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
)

type implClient struct {
	conn    net.Conn
	reader  *bufio.Reader
	welcome string
}

// Dial connects to the broker socket at path and consumes the welcome line
func Dial(ctx context.Context, path string) (Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}

	c := &implClient{conn: conn, reader: bufio.NewReader(conn)}
	welcome, err := c.ReadLine(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	c.welcome = welcome
	return c, nil
}

func (c *implClient) Welcome() string {
	return c.welcome
}

func (c *implClient) ReadLine(ctx context.Context) (string, error) {
	c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	line, err := c.reader.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *implClient) Next(ctx context.Context) (watcher.ChangeEvent, error) {
	line, err := c.ReadLine(ctx)
	if err != nil {
		return watcher.ChangeEvent{}, err
	}
	return watcher.ParseEvent(line)
}

func (c *implClient) Close() error {
	return c.conn.Close()
}

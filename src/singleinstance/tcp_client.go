package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	statusSuccess = "SUCCESS\n"
	statusError   = "ERROR\n"

	// A CAPTURE reply waits for the user to finish the selection.
	captureReplyTimeout = 5 * time.Minute
)

var errUnexpectedReply = errors.New("unexpected reply from resident")

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

// Delegate sends command to the first port in range that answers PING.
// Once a resident was reached, delegated is true even when err is set.
func (c *tcpClient) Delegate(ctx context.Context, command string) (bool, string, error) {
	dial := dialTimeout(ctx, 2*time.Second)
	start, end := PortRange()
	for port := start; port <= end; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if !ping(addr, dial) {
			continue
		}
		conn, err := net.DialTimeout("tcp", addr, dial)
		if err != nil {
			continue
		}
		text, err := exchange(ctx, conn, strings.ToUpper(command))
		return true, text, err
	}
	return false, "", nil
}

// exchange writes one command line and reads the status line plus body.
func exchange(ctx context.Context, conn net.Conn, command string) (string, error) {
	defer conn.Close()

	deadline := time.Now().Add(captureReplyTimeout)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, command+"\n"); err != nil {
		return "", err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	body, _ := io.ReadAll(br)

	switch status {
	case statusSuccess:
		return string(body), nil
	case statusError:
		return "", errors.New(string(body))
	default:
		return "", fmt.Errorf("%w: %q", errUnexpectedReply, strings.TrimSpace(status))
	}
}

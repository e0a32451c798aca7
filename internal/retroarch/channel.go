package retroarch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
)

// DefaultCommandAddr is the loopback address of RetroArch's network command
// interface (network_cmd_port in retroarch.cfg).
const DefaultCommandAddr = "127.0.0.1:55355"

// DefaultReadTimeout bounds a single memory read. Reads run several times per
// poll tick, so the window is deliberately short.
const DefaultReadTimeout = 250 * time.Millisecond

// Channel is a request/response client over the RetroArch UDP command socket.
//
// The wire protocol carries no correlation id beyond the address echoed in
// each response, so Channel serializes reads internally and matches inbound
// datagrams against the requested address. Replies that surface after their
// read timed out stay queued in the socket buffer; the address check keeps
// them from being mistaken for the next read's response. The underlying
// socket is created lazily on first use and reused for the lifetime of the
// channel.
type Channel struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewChannel creates a channel that talks to the command interface at addr.
// A non-positive timeout falls back to DefaultReadTimeout.
func NewChannel(addr string, timeout time.Duration) *Channel {
	if addr == "" {
		addr = DefaultCommandAddr
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Channel{addr: addr, timeout: timeout}
}

// Read issues READ_CORE_MEMORY for the given hexadecimal address and byte
// width and returns the value of the first byte reported back.
//
// A malformed or truncated response yields 0 rather than an error, matching
// the command interface's own behavior for unreadable addresses.
func (c *Channel) Read(ctx context.Context, address string, width int) (int64, error) {
	if width <= 0 {
		width = 1
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := net.Dial("udp", c.addr)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.CodeTransportSend, "dial command socket", err)
		}
		c.conn = conn
	}

	command := fmt.Sprintf("READ_CORE_MEMORY %s %d", address, width)
	if _, err := c.conn.Write([]byte(command)); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeTransportSend, "send command", err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeTransportSend, "set read deadline", err)
	}

	buf := make([]byte, 1024)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return 0, apperrors.Wrap(apperrors.CodeTransportTimeout, fmt.Sprintf("memory read timeout for address %s", address), err)
			}
			return 0, apperrors.Wrap(apperrors.CodeTransportSend, "read response", err)
		}
		response := string(buf[:n])
		// The only correlation the protocol offers is the echoed address.
		// A datagram carrying a different address is the late reply to an
		// earlier read that already timed out; drop it and keep waiting.
		if !matchesAddress(response, address) {
			continue
		}
		return parseReadResponse(response), nil
	}
}

// Close releases the underlying socket. It is safe to call multiple times and
// before any read has been issued; the next read re-dials.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// matchesAddress reports whether a command response echoes the requested
// address in its second field.
func matchesAddress(response, address string) bool {
	parts := strings.Fields(strings.TrimSpace(response))
	return len(parts) >= 2 && strings.EqualFold(parts[1], address)
}

// parseReadResponse extracts the counter value from a command response of the
// form "READ_CORE_MEMORY <address> <byte> [<byte> ...]". The bytes are
// hexadecimal; only the first is meaningful for the single-byte counters this
// engine tracks. Anything unparseable reads as 0.
func parseReadResponse(response string) int64 {
	parts := strings.Fields(strings.TrimSpace(response))
	if len(parts) < 3 {
		return 0
	}
	value, err := strconv.ParseInt(parts[2], 16, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}

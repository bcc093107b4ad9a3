package transport

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// STOMP commands.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// STOMP framing errors.
var (
	// ErrFrameTruncated indicates a frame without its NUL terminator or with
	// fewer body bytes than its content-length.
	ErrFrameTruncated = errors.New("stomp frame truncated")

	// ErrFrameInvalid indicates a syntactically invalid frame.
	ErrFrameInvalid = errors.New("stomp frame invalid")
)

// StompFrame is a single STOMP 1.2 frame.
type StompFrame struct {
	Command string

	// Headers keeps insertion order; on decode the first occurrence of a
	// repeated header wins, as STOMP 1.2 requires.
	Headers [][2]string

	Body []byte
}

// NewStompFrame creates a frame with the given command and header pairs.
func NewStompFrame(command string, kv ...string) *StompFrame {
	f := &StompFrame{Command: command}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

// Get returns the first value of header name.
func (f *StompFrame) Get(name string) (string, bool) {
	for _, h := range f.Headers {
		if h[0] == name {
			return h[1], true
		}
	}
	return "", false
}

// Value returns the first value of header name or "".
func (f *StompFrame) Value(name string) string {
	v, _ := f.Get(name)
	return v
}

// Set replaces header name or appends it.
func (f *StompFrame) Set(name, value string) {
	for i, h := range f.Headers {
		if h[0] == name {
			f.Headers[i][1] = value
			return
		}
	}
	f.Headers = append(f.Headers, [2]string{name, value})
}

// Encode renders the frame. A content-length header is added when the frame
// has a body.
func (f *StompFrame) Encode() []byte {
	var buf bytes.Buffer
	escape := f.Command != CmdConnect && f.Command != CmdConnected

	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	for _, h := range f.Headers {
		if h[0] == "content-length" {
			continue
		}
		buf.WriteString(encodeHeader(h[0], escape))
		buf.WriteByte(':')
		buf.WriteString(encodeHeader(h[1], escape))
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		buf.WriteString("content-length:")
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

var headerEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\r", "\\r",
	"\n", "\\n",
	":", "\\c",
)

var headerUnescaper = strings.NewReplacer(
	"\\\\", "\\",
	"\\r", "\r",
	"\\n", "\n",
	"\\c", ":",
)

func encodeHeader(s string, escape bool) string {
	if !escape {
		return s
	}
	return headerEscaper.Replace(s)
}

// IsHeartbeat reports whether data consists only of end-of-line bytes, the
// STOMP heart-beat.
func IsHeartbeat(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b != '\n' && b != '\r' {
			return false
		}
	}
	return true
}

// DecodeStompFrames parses every frame in data. Heart-beat EOLs between
// frames are skipped and counted.
func DecodeStompFrames(data []byte) (frames []*StompFrame, heartbeats int, err error) {
	for {
		// Skip heart-beats and inter-frame EOLs.
		n := 0
		for n < len(data) && (data[n] == '\n' || data[n] == '\r') {
			if data[n] == '\n' {
				heartbeats++
			}
			n++
		}
		data = data[n:]
		if len(data) == 0 {
			return frames, heartbeats, nil
		}

		f, rest, err := decodeStompFrame(data)
		if err != nil {
			return frames, heartbeats, err
		}
		frames = append(frames, f)
		data = rest
	}
}

func decodeStompFrame(data []byte) (*StompFrame, []byte, error) {
	line, data, ok := cutLine(data)
	if !ok {
		return nil, nil, ErrFrameTruncated
	}
	if line == "" {
		return nil, nil, fmt.Errorf("%w: empty command", ErrFrameInvalid)
	}

	f := &StompFrame{Command: line}
	unescape := f.Command != CmdConnect && f.Command != CmdConnected

	for {
		line, data, ok = cutLine(data)
		if !ok {
			return nil, nil, ErrFrameTruncated
		}
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, nil, fmt.Errorf("%w: header without colon %q", ErrFrameInvalid, line)
		}
		if unescape {
			name = headerUnescaper.Replace(name)
			value = headerUnescaper.Replace(value)
		}
		if _, dup := f.Get(name); !dup {
			f.Headers = append(f.Headers, [2]string{name, value})
		}
	}

	if cl, ok := f.Get("content-length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, nil, fmt.Errorf("%w: content-length %q", ErrFrameInvalid, cl)
		}
		if len(data) < n+1 {
			return nil, nil, ErrFrameTruncated
		}
		if data[n] != 0 {
			return nil, nil, fmt.Errorf("%w: missing NUL after body", ErrFrameInvalid)
		}
		f.Body = append([]byte(nil), data[:n]...)
		return f, data[n+1:], nil
	}

	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return nil, nil, ErrFrameTruncated
	}
	if end > 0 {
		f.Body = append([]byte(nil), data[:end]...)
	}
	return f, data[end+1:], nil
}

// cutLine splits off one line, accepting LF or CRLF endings.
func cutLine(data []byte) (string, []byte, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", nil, false
	}
	line := data[:i]
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(line), data[i+1:], true
}

// FormatHeartBeat renders the heart-beat header value "cx,cy" in
// milliseconds.
func FormatHeartBeat(send, receive time.Duration) string {
	return strconv.FormatInt(send.Milliseconds(), 10) + "," + strconv.FormatInt(receive.Milliseconds(), 10)
}

// ParseHeartBeat parses a heart-beat header value. A missing or malformed
// value means no heart-beats.
func ParseHeartBeat(v string) (send, receive time.Duration) {
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0
	}
	x, err1 := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	y, err2 := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if err1 != nil || err2 != nil || x < 0 || y < 0 {
		return 0, 0
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond
}

// NegotiateHeartBeat returns the intervals at which the client must send
// heart-beats and may expect them, given the client's offer and the server's
// CONNECTED answer. Zero disables the direction.
func NegotiateHeartBeat(clientSend, clientRecv, serverSend, serverRecv time.Duration) (send, expect time.Duration) {
	if clientSend > 0 && serverRecv > 0 {
		send = max(clientSend, serverRecv)
	}
	if clientRecv > 0 && serverSend > 0 {
		expect = max(clientRecv, serverSend)
	}
	return send, expect
}

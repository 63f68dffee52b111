package control

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// StdioChannel frames Requests/Responses/Notifications as length-prefixed
// JSON over an arbitrary io.Reader/io.Writer pair (stdin/stdout in
// production), mirroring the 4-byte-length-prefix framing the teacher's
// websocket pump reads message-by-message instead of line-by-line.
type StdioChannel struct {
	r *bufio.Reader
	w io.Writer

	writeMu sync.Mutex
}

// NewStdioChannel wraps r/w.
func NewStdioChannel(r io.Reader, w io.Writer) *StdioChannel {
	return &StdioChannel{r: bufio.NewReader(r), w: w}
}

// ReadRequest blocks for the next framed Request. A protocol violation in
// the frame itself (bad length, truncated body, invalid JSON) is returned
// as an error; the caller should treat this as a channel-level failure
// (spec §6: exit code 42) rather than retry.
func (s *StdioChannel) ReadRequest() (Request, error) {
	var req Request
	body, err := s.readFrame()
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("control: malformed request frame: %w", err)
	}
	return req, nil
}

func (s *StdioChannel) readFrame() ([]byte, error) {
	var length uint32
	if err := binary.Read(s.r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(s.r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteResponse frames and writes a Response.
func (s *StdioChannel) WriteResponse(resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.writeFrame(b)
}

// WriteNotification frames and writes a Notification.
func (s *StdioChannel) WriteNotification(n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.writeFrame(b)
}

func (s *StdioChannel) writeFrame(body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(body)))
	if _, err := s.w.Write(length[:]); err != nil {
		return err
	}
	_, err := s.w.Write(body)
	return err
}

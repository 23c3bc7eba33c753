package ld2410

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// Frame markers as defined by the LD2410 serial protocol. Data frames carry
// measurements, command frames carry configuration requests and their acks.
var (
	dataHeader = []byte{0xf4, 0xf3, 0xf2, 0xf1}
	dataFooter = []byte{0xf8, 0xf7, 0xf6, 0xf5}
	cmdHeader  = []byte{0xfd, 0xfc, 0xfb, 0xfa}
	cmdFooter  = []byte{0x04, 0x03, 0x02, 0x01}
)

// maxPayload bounds the 2-byte length field. The longest real frame
// (engineering report) is well under this; anything larger is a torn read.
const maxPayload = 256

// pollInterval is how long the scanner sleeps when the stream has no bytes.
const pollInterval = 2 * time.Millisecond

// maxDesyncs bounds resync attempts within a single next call before the
// condition escalates to a timeout.
const maxDesyncs = 8

// FrameKind discriminates the two frame families on the wire.
type FrameKind byte

const (
	// FrameData is a measurement report (F4 F3 F2 F1 ... F8 F7 F6 F5).
	FrameData FrameKind = iota
	// FrameAck is a command acknowledgement (FD FC FB FA ... 04 03 02 01).
	FrameAck
)

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameAck:
		return "ack"
	default:
		return "unknown"
	}
}

// RawFrame is a complete intra-frame payload yielded by the scanner.
// The Payload slice is owned by the receiver.
type RawFrame struct {
	Kind    FrameKind
	Payload []byte
}

// frameScanner resynchronizes to frame boundaries on a byte stream. The
// underlying reader is expected to behave like a serial port with a read
// timeout: a poll may yield zero bytes (or io.EOF, as tarm/serial does when
// the timeout expires) without the stream being closed.
type frameScanner struct {
	r    io.Reader
	pend []byte
	tmp  [64]byte
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{r: r}
}

// next returns the next complete frame of either kind. A header whose footer
// does not verify is dropped and scanning resumes from the byte after the
// consumed header, never backward. If no complete frame is found before
// deadline, next returns ErrTimeout.
func (s *frameScanner) next(deadline time.Time) (RawFrame, error) {
	desyncs := 0
	for {
		// Checked every iteration, not only on empty polls: a device that
		// keeps streaming frames must not be able to hold the caller past
		// its deadline.
		if !time.Now().Before(deadline) {
			return RawFrame{}, ErrTimeout
		}
		if desyncs > maxDesyncs {
			return RawFrame{}, fmt.Errorf("%w (%v repeated %d times)", ErrTimeout, errDesync, desyncs)
		}
		if err := s.fill(4, deadline); err != nil {
			return RawFrame{}, err
		}
		kind, footer, ok := matchHeader(s.pend[:4])
		if !ok {
			s.pend = s.pend[1:]
			continue
		}
		if err := s.fill(6, deadline); err != nil {
			return RawFrame{}, err
		}
		n := int(binary.LittleEndian.Uint16(s.pend[4:6]))
		if n > maxPayload {
			log.Debugf("implausible frame length %d, resyncing", n)
			s.pend = s.pend[4:]
			desyncs++
			continue
		}
		total := 4 + 2 + n + 4
		if err := s.fill(total, deadline); err != nil {
			return RawFrame{}, err
		}
		if !bytes.Equal(s.pend[total-4:total], footer) {
			log.Debugf("footer mismatch on %v frame '%# x', resyncing", kind, s.pend[:total])
			s.pend = s.pend[4:]
			desyncs++
			continue
		}
		payload := append([]byte(nil), s.pend[6:6+n]...)
		s.pend = append(s.pend[:0], s.pend[total:]...)
		return RawFrame{Kind: kind, Payload: payload}, nil
	}
}

// fill blocks until at least n bytes are pending or the deadline passes.
func (s *frameScanner) fill(n int, deadline time.Time) error {
	for len(s.pend) < n {
		r, err := s.r.Read(s.tmp[:])
		if r > 0 {
			s.pend = append(s.pend, s.tmp[:r]...)
			continue
		}
		if err != nil && err != io.EOF {
			return err
		}
		// Zero bytes: the port's read timeout elapsed with nothing to read.
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		time.Sleep(pollInterval)
	}
	return nil
}

func matchHeader(b []byte) (FrameKind, []byte, bool) {
	switch {
	case bytes.Equal(b, dataHeader):
		return FrameData, dataFooter, true
	case bytes.Equal(b, cmdHeader):
		return FrameAck, cmdFooter, true
	default:
		return 0, nil, false
	}
}

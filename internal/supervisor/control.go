package supervisor

import (
	"encoding/binary"
	"fmt"

	"github.com/tuxdude/zzzlogi"
	"golang.org/x/sys/unix"
)

const frameSize = 9

// ControlOp is the one-byte operation code of a control-FIFO frame
// (spec.md §4.C).
type ControlOp byte

const (
	ControlStart   ControlOp = 0x01
	ControlStop    ControlOp = 0x02
	ControlRestart ControlOp = 0x03
)

func (op ControlOp) valid() bool {
	switch op {
	case ControlStart, ControlStop, ControlRestart:
		return true
	default:
		return false
	}
}

// ControlCommand is one decoded 9-byte frame.
type ControlCommand struct {
	Op ControlOp
	ID ServiceID
}

// ControlChannel reads fixed-size 9-byte command frames from the named
// pipe at path (spec.md §4.C). It opens the FIFO O_RDWR so the supervisor
// itself holds a permanent writer, which keeps the read end from observing
// EOF whenever no external writer is attached.
type ControlChannel struct {
	path string
	fd   int
	buf  []byte
	log  zzzlogi.Logger
}

// OpenControlChannel creates the FIFO at path if it doesn't already exist
// and opens it for non-blocking read/write.
func OpenControlChannel(path string, log zzzlogi.Logger) (*ControlChannel, error) {
	if err := unix.Mkfifo(path, 0o600); err != nil && err != unix.EEXIST {
		return nil, fmt.Errorf("control fifo %s: mkfifo: %w", path, err)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("control fifo %s: open: %w", path, err)
	}
	return &ControlChannel{path: path, fd: fd, log: log}, nil
}

// FD returns the file descriptor to register with the event loop.
func (c *ControlChannel) FD() int { return c.fd }

// Close releases the FIFO descriptor.
func (c *ControlChannel) Close() error { return unix.Close(c.fd) }

// Read drains whatever bytes are currently available, buffers any partial
// trailing frame, and returns every complete frame decoded so far. A
// malformed operation byte drops just that frame and resynchronizes at the
// next 9-byte boundary (spec.md §4.C, §7).
func (c *ControlChannel) Read() ([]ControlCommand, error) {
	var chunk [256]byte
	for {
		n, err := unix.Read(c.fd, chunk[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return nil, err
		}
		if n <= 0 {
			break
		}
		c.buf = append(c.buf, chunk[:n]...)
	}

	cmds, rest := decodeFrames(c.buf, c.log)
	c.buf = rest
	return cmds, nil
}

// decodeFrames parses every complete 9-byte frame out of buf, returning the
// decoded commands and whatever partial trailing bytes remain buffered.
// Factored out of ControlChannel.Read so the framing logic can be tested
// without a real FIFO descriptor.
func decodeFrames(buf []byte, log zzzlogi.Logger) ([]ControlCommand, []byte) {
	var cmds []ControlCommand
	offset := 0
	for len(buf)-offset >= frameSize {
		frame := buf[offset : offset+frameSize]
		offset += frameSize

		op := ControlOp(frame[0])
		if !op.valid() {
			if log != nil {
				log.Warnf("control: malformed frame, op=0x%02x dropped", frame[0])
			}
			continue
		}
		id := binary.LittleEndian.Uint64(frame[1:9])
		cmds = append(cmds, ControlCommand{Op: op, ID: ServiceID(id)})
	}
	return cmds, append([]byte(nil), buf[offset:]...)
}

package dispatch

import (
	"encoding/binary"
	"fmt"
	"time"
)

// TimestampSize is the length of a ping reply payload.
const TimestampSize = 8

// Clock reports microseconds since the Unix epoch. Successive readings from
// one Clock strictly increase even when the wall clock stalls or steps back.
// It is owned by a single loop and is not safe for concurrent use.
type Clock struct {
	now  func() time.Time
	last uint64
}

// NewClock returns a Clock reading now, or time.Now when now is nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Micros returns the current reading.
func (c *Clock) Micros() uint64 {
	var us uint64
	if t := c.now().UnixMicro(); t > 0 {
		us = uint64(t)
	}
	if us <= c.last {
		us = c.last + 1
	}
	c.last = us
	return us
}

// EncodeTimestamp encodes us as 8 big-endian bytes.
func EncodeTimestamp(us uint64) [TimestampSize]byte {
	var b [TimestampSize]byte
	binary.BigEndian.PutUint64(b[:], us)
	return b
}

// DecodeTimestamp decodes a ping reply payload.
func DecodeTimestamp(b []byte) (uint64, error) {
	if len(b) != TimestampSize {
		return 0, fmt.Errorf("invalid timestamp length: got %d bytes, want %d", len(b), TimestampSize)
	}
	return binary.BigEndian.Uint64(b), nil
}

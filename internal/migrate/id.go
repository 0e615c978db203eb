package migrate

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// maxTimestampMs is the largest millisecond timestamp representable in the
// 48 high bits of a minted identifier (2^48 - 1).
const maxTimestampMs = (1 << 48) - 1

// Mint derives a 128-bit, time-sortable identifier from ts and entropy read
// from rng. The high 48 bits are ts truncated to millisecond resolution,
// big-endian; the low 80 bits are random. This is the same byte layout the
// upstream Rust implementation gets for free from ulid::Ulid, converted to
// a UUID: lexicographic order on the bytes matches temporal order within a
// millisecond.
//
// Mint fails only if ts falls outside the representable range, which would
// indicate a programming error (a timestamp far in the future, or before
// the Unix epoch) rather than bad input data.
func Mint(ts time.Time, rng io.Reader) (uuid.UUID, error) {
	ms := ts.UnixMilli()
	if ms < 0 || ms > maxTimestampMs {
		return uuid.Nil, fmt.Errorf("migrate: timestamp %s is outside the representable 48-bit millisecond range", ts)
	}

	var id uuid.UUID
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)

	if _, err := io.ReadFull(rng, id[6:]); err != nil {
		return uuid.Nil, fmt.Errorf("migrate: reading entropy for id: %w", err)
	}

	return id, nil
}

// MintNow is Mint(clock.Now(), rng).
func MintNow(clock Clock, rng io.Reader) (uuid.UUID, error) {
	return Mint(clock.Now(), rng)
}

// IDTimestamp recovers the millisecond-resolution timestamp embedded in the
// high 48 bits of a minted identifier. Used to date rows (e.g. upstream
// OAuth links, §4.8) whose creation time was never stored in the source and
// must instead be recovered from an already-minted identifier.
func IDTimestamp(id uuid.UUID) time.Time {
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
	return time.UnixMilli(ms).UTC()
}

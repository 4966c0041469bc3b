package engine

import "fmt"

// Clock is a logical sequence cursor. Seq 0 is the initial snapshot and each
// emitted update takes the next integer; journals and streams order by seq,
// never by wall-clock time.
//
// Producers advance it with Next. Consumers check incoming updates with
// Observe, which refuses anything but the direct successor. A Clock belongs
// to a single goroutine.
type Clock struct {
	last int64
}

// NewClock returns a cursor at the initial snapshot.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a cursor positioned at seq, e.g. the seq a snapshot was
// taken at. The next update is seq+1.
func NewClockAt(seq int64) *Clock {
	return &Clock{last: seq}
}

// Next advances the cursor and returns the new seq.
func (c *Clock) Next() int64 {
	c.last++
	return c.last
}

// Current returns the last seq handed out or observed.
func (c *Clock) Current() int64 {
	return c.last
}

// Observe advances to seq if it directly follows the cursor. Otherwise the
// cursor stays put and a *SeqGapError is returned.
func (c *Clock) Observe(seq int64) error {
	if seq != c.last+1 {
		return &SeqGapError{Last: c.last, Got: seq}
	}
	c.last = seq
	return nil
}

// SeqGapError reports an update that does not directly follow the last seq
// seen, whether skipped, repeated or reordered.
type SeqGapError struct {
	Last int64
	Got  int64
}

func (e *SeqGapError) Error() string {
	return fmt.Sprintf("sequence gap: got %d after %d", e.Got, e.Last)
}

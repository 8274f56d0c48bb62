package broker

import (
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/types"
	"github.com/CefBoud/monstream/utils"
)

// chunk is what a single publish frame appended to a stream
type chunk struct {
	firstOffset uint64
	timestamp   int64
	entries     []protocol.Entry
}

// streamLog is the in memory content of a stream
type streamLog struct {
	chunks     []chunk
	nextOffset uint64
}

func (l *streamLog) append(entries []protocol.Entry) chunk {
	ch := chunk{firstOffset: l.nextOffset, timestamp: utils.NowAsUnixMilli(), entries: entries}
	for _, e := range entries {
		l.nextOffset += uint64(e.Records())
	}
	l.chunks = append(l.chunks, ch)
	return ch
}

// start returns the index of the first chunk to deliver for offset
func (l *streamLog) start(offset types.Offset) int {
	switch offset.Type() {
	case types.OffsetTypeNext:
		return len(l.chunks)
	case types.OffsetTypeLast:
		return max(len(l.chunks)-1, 0)
	case types.OffsetTypeAbsolute:
		v, _ := offset.Absolute()
		for i, ch := range l.chunks {
			end := ch.firstOffset
			for _, e := range ch.entries {
				end += uint64(e.Records())
			}
			if v < end {
				return i
			}
		}
		return len(l.chunks)
	case types.OffsetTypeTimestamp:
		ts, _ := offset.Timestamp()
		for i, ch := range l.chunks {
			if ch.timestamp >= ts {
				return i
			}
		}
		return len(l.chunks)
	default:
		return 0
	}
}

// subscription is a consumer of a stream on a connection
type subscription struct {
	id     uint8
	stream string
	credit int
	next   int
}

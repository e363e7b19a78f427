// Package gulp implements the chunk container: an append-only data file of
// concatenated JPEG images and a metadata file indexing every image by
// label id and record id with its byte range, in write order.
package gulp

import "flowset/internal/contract"

// ErrSealed is returned when writing to a closed container.
var ErrSealed = contract.ErrSealed

// alignment of every image in the data file.
const alignment = 4

// Entry locates one image in the data file.
type Entry struct {
	LabelID  int    `msgpack:"label_id"`
	RecordID string `msgpack:"record_id"`
	Offset   int64  `msgpack:"offset"`
	Length   int64  `msgpack:"length"`
	Pad      int    `msgpack:"pad"`
}

func padding(n int) int {
	return (alignment - n%alignment) % alignment
}

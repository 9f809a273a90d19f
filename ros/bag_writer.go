package ros

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Bag v2.0 record opcodes.
const (
	opMessageData = 0x02
	opBagHeader   = 0x03
	opIndexData   = 0x04
	opChunk       = 0x05
	opChunkInfo   = 0x06
	opConnection  = 0x07
)

const (
	bagMagic = "#ROSBAG V2.0\n"
	// bagHeaderLength is the padded size of the bag header record, so it can be rewritten in
	// place once the index position is known.
	bagHeaderLength = 4096
	// DefaultChunkThreshold is the uncompressed chunk size after which a chunk is written out.
	DefaultChunkThreshold = 768 * 1024
)

// ErrBagClosed is returned when writing to a closed BagWriter.
var ErrBagClosed = errors.New("bag writer is closed")

type bagConnection struct {
	id    uint32
	topic string
	msg   Message
}

type indexEntry struct {
	time   Time
	offset uint32
}

type chunkInfo struct {
	pos        int64
	start, end Time
	counts     map[uint32]uint32
}

// BagWriter writes messages to an uncompressed ROS bag v2.0 file. It is not safe for
// concurrent use.
type BagWriter struct {
	f   *os.File
	w   *bufio.Writer
	pos int64

	chunkThreshold int
	connections    map[string]*bagConnection
	connOrder      []*bagConnection

	chunk      bytes.Buffer
	chunkIndex map[uint32][]indexEntry
	chunkStart Time
	chunkEnd   Time
	chunkInfos []chunkInfo

	messageCount int
	closed       bool
}

// NewBagWriter creates the bag file at path, truncating it if it exists.
func NewBagWriter(path string) (*BagWriter, error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create bag %q", path)
	}
	bw := &BagWriter{
		f:              f,
		w:              bufio.NewWriter(f),
		chunkThreshold: DefaultChunkThreshold,
		connections:    map[string]*bagConnection{},
		chunkIndex:     map[uint32][]indexEntry{},
	}
	if err := bw.writeBytes([]byte(bagMagic)); err != nil {
		return nil, multierr.Combine(err, f.Close())
	}
	if err := bw.writeBagHeader(0); err != nil {
		return nil, multierr.Combine(err, f.Close())
	}
	return bw, nil
}

// SetChunkThreshold sets the chunk size after which a chunk is written out.
func (bw *BagWriter) SetChunkThreshold(size int) {
	bw.chunkThreshold = size
}

// MessageCount returns the number of messages written so far.
func (bw *BagWriter) MessageCount() int {
	return bw.messageCount
}

// Topics returns the topics written so far in the order they were first seen.
func (bw *BagWriter) Topics() []string {
	topics := make([]string, 0, len(bw.connOrder))
	for _, c := range bw.connOrder {
		topics = append(topics, c.topic)
	}
	return topics
}

// WriteMessage appends msg on topic with the given receive time. A topic keeps the message
// type of its first message.
func (bw *BagWriter) WriteMessage(topic string, stamp Time, msg Message) error {
	if bw.closed {
		return ErrBagClosed
	}
	if topic == "" {
		return errors.New("topic must not be empty")
	}
	conn, ok := bw.connections[topic]
	if !ok {
		conn = &bagConnection{id: uint32(len(bw.connOrder)), topic: topic, msg: msg}
		bw.connections[topic] = conn
		bw.connOrder = append(bw.connOrder, conn)
		if err := writeRecord(&bw.chunk, connectionHeader(conn), connectionData(conn)); err != nil {
			return err
		}
	} else if conn.msg.Type() != msg.Type() {
		return errors.Errorf("topic %q carries %s, cannot write %s", topic, conn.msg.Type(), msg.Type())
	}

	var payload bytes.Buffer
	if err := msg.MarshalROS(&payload); err != nil {
		return errors.Wrapf(err, "error serializing %s", msg.Type())
	}

	if len(bw.chunkIndex) == 0 || stamp.Before(bw.chunkStart) {
		bw.chunkStart = stamp
	}
	if len(bw.chunkIndex) == 0 || bw.chunkEnd.Before(stamp) {
		bw.chunkEnd = stamp
	}
	offset := uint32(bw.chunk.Len())
	header := []headerField{
		{"op", []byte{opMessageData}},
		{"conn", uint32Bytes(conn.id)},
		{"time", timeBytes(stamp)},
	}
	if err := writeRecord(&bw.chunk, header, payload.Bytes()); err != nil {
		return err
	}
	bw.chunkIndex[conn.id] = append(bw.chunkIndex[conn.id], indexEntry{time: stamp, offset: offset})
	bw.messageCount++

	if bw.chunk.Len() >= bw.chunkThreshold {
		return bw.flushChunk()
	}
	return nil
}

// Close writes the pending chunk, the connection and chunk info records, and the final bag
// header. Close is idempotent.
func (bw *BagWriter) Close() (err error) {
	if bw.closed {
		return nil
	}
	bw.closed = true
	defer func() {
		err = multierr.Combine(err, bw.f.Close())
	}()

	if err := bw.flushChunk(); err != nil {
		return err
	}
	indexPos := bw.pos
	for _, conn := range bw.connOrder {
		var rec bytes.Buffer
		if err := writeRecord(&rec, connectionHeader(conn), connectionData(conn)); err != nil {
			return err
		}
		if err := bw.writeBytes(rec.Bytes()); err != nil {
			return err
		}
	}
	for _, info := range bw.chunkInfos {
		var rec bytes.Buffer
		if err := writeRecord(&rec, chunkInfoHeader(info), chunkInfoData(info)); err != nil {
			return err
		}
		if err := bw.writeBytes(rec.Bytes()); err != nil {
			return err
		}
	}
	if err := bw.w.Flush(); err != nil {
		return err
	}
	if _, err := bw.f.Seek(int64(len(bagMagic)), 0); err != nil {
		return err
	}
	bw.w.Reset(bw.f)
	return bw.writeBagHeader(indexPos)
}

func (bw *BagWriter) writeBytes(p []byte) error {
	n, err := bw.w.Write(p)
	bw.pos += int64(n)
	return err
}

func (bw *BagWriter) writeBagHeader(indexPos int64) error {
	header := []headerField{
		{"index_pos", int64Bytes(indexPos)},
		{"conn_count", uint32Bytes(uint32(len(bw.connOrder)))},
		{"chunk_count", uint32Bytes(uint32(len(bw.chunkInfos)))},
		{"op", []byte{opBagHeader}},
	}
	headerLen := headerSize(header)
	padding := bytes.Repeat([]byte{' '}, bagHeaderLength-4-headerLen-4)
	var rec bytes.Buffer
	if err := writeRecord(&rec, header, padding); err != nil {
		return err
	}
	if err := bw.writeBytes(rec.Bytes()); err != nil {
		return err
	}
	return bw.w.Flush()
}

func (bw *BagWriter) flushChunk() error {
	if len(bw.chunkIndex) == 0 {
		return nil
	}
	info := chunkInfo{pos: bw.pos, start: bw.chunkStart, end: bw.chunkEnd, counts: map[uint32]uint32{}}

	var rec bytes.Buffer
	header := []headerField{
		{"op", []byte{opChunk}},
		{"compression", []byte("none")},
		{"size", uint32Bytes(uint32(bw.chunk.Len()))},
	}
	if err := writeRecord(&rec, header, bw.chunk.Bytes()); err != nil {
		return err
	}

	ids := make([]uint32, 0, len(bw.chunkIndex))
	for id := range bw.chunkIndex {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		entries := bw.chunkIndex[id]
		info.counts[id] = uint32(len(entries))
		header := []headerField{
			{"op", []byte{opIndexData}},
			{"ver", uint32Bytes(1)},
			{"conn", uint32Bytes(id)},
			{"count", uint32Bytes(uint32(len(entries)))},
		}
		data := make([]byte, 0, 12*len(entries))
		for _, entry := range entries {
			data = append(data, timeBytes(entry.time)...)
			data = append(data, uint32Bytes(entry.offset)...)
		}
		if err := writeRecord(&rec, header, data); err != nil {
			return err
		}
	}
	if err := bw.writeBytes(rec.Bytes()); err != nil {
		return err
	}

	bw.chunkInfos = append(bw.chunkInfos, info)
	bw.chunk.Reset()
	bw.chunkIndex = map[uint32][]indexEntry{}
	return nil
}

type headerField struct {
	name  string
	value []byte
}

func headerSize(fields []headerField) int {
	size := 0
	for _, f := range fields {
		size += 4 + len(f.name) + 1 + len(f.value)
	}
	return size
}

// writeRecord writes <header_len><header><data_len><data>, each header field being
// <field_len><name>=<value>.
func writeRecord(buf *bytes.Buffer, fields []headerField, data []byte) error {
	buf.Write(uint32Bytes(uint32(headerSize(fields))))
	for _, f := range fields {
		buf.Write(uint32Bytes(uint32(len(f.name) + 1 + len(f.value))))
		buf.WriteString(f.name)
		buf.WriteByte('=')
		buf.Write(f.value)
	}
	buf.Write(uint32Bytes(uint32(len(data))))
	_, err := buf.Write(data)
	return err
}

func connectionHeader(conn *bagConnection) []headerField {
	return []headerField{
		{"op", []byte{opConnection}},
		{"conn", uint32Bytes(conn.id)},
		{"topic", []byte(conn.topic)},
	}
}

func connectionData(conn *bagConnection) []byte {
	fields := []headerField{
		{"topic", []byte(conn.topic)},
		{"type", []byte(conn.msg.Type())},
		{"md5sum", []byte(conn.msg.MD5Sum())},
		{"message_definition", []byte(conn.msg.Definition())},
	}
	var buf bytes.Buffer
	for _, f := range fields {
		buf.Write(uint32Bytes(uint32(len(f.name) + 1 + len(f.value))))
		buf.WriteString(f.name)
		buf.WriteByte('=')
		buf.Write(f.value)
	}
	return buf.Bytes()
}

func chunkInfoHeader(info chunkInfo) []headerField {
	return []headerField{
		{"op", []byte{opChunkInfo}},
		{"ver", uint32Bytes(1)},
		{"chunk_pos", int64Bytes(info.pos)},
		{"start_time", timeBytes(info.start)},
		{"end_time", timeBytes(info.end)},
		{"count", uint32Bytes(uint32(len(info.counts)))},
	}
}

func chunkInfoData(info chunkInfo) []byte {
	ids := make([]uint32, 0, len(info.counts))
	for id := range info.counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	data := make([]byte, 0, 8*len(ids))
	for _, id := range ids {
		data = append(data, uint32Bytes(id)...)
		data = append(data, uint32Bytes(info.counts[id])...)
	}
	return data
}

func uint32Bytes(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func int64Bytes(v int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v))
}

func timeBytes(t Time) []byte {
	return binary.LittleEndian.AppendUint32(uint32Bytes(t.Sec), t.Nsec)
}

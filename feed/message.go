package feed

import (
	"encoding/binary"
	"errors"

	"atlas/domain/orderbook"
)

// OrderAction is the L2 action carried by a feed message.
type OrderAction uint8

const (
	ActionAdd OrderAction = iota
	ActionModify
	ActionDelete
	ActionExecute
)

// L2Message is the fixed-size record handed across the SPSC ring. It fits in
// one cache line; Sequence is monotonic per symbol.
type L2Message struct {
	Timestamp orderbook.Timestamp
	SymbolID  uint32
	_         uint32
	Price     orderbook.Price
	Quantity  orderbook.Quantity
	Side      orderbook.Side
	Action    OrderAction
	_         [6]byte
	Sequence  uint64
}

// L2MessageSize is the encoded frame length.
const L2MessageSize = 48

var ErrShortFrame = errors.New("feed: short L2 frame")

// Encode writes the message as a little-endian 48-byte frame.
func (m *L2Message) Encode(buf []byte) []byte {
	if buf == nil {
		buf = make([]byte, L2MessageSize)
	}
	binary.LittleEndian.PutUint64(buf[0:8], m.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], m.SymbolID)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.Price))
	binary.LittleEndian.PutUint64(buf[24:32], m.Quantity)
	buf[32] = byte(m.Side)
	buf[33] = byte(m.Action)
	for i := 34; i < 40; i++ {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf[40:48], m.Sequence)
	return buf[:L2MessageSize]
}

// DecodeL2 parses a frame produced by Encode.
func DecodeL2(buf []byte) (L2Message, error) {
	if len(buf) < L2MessageSize {
		return L2Message{}, ErrShortFrame
	}
	return L2Message{
		Timestamp: binary.LittleEndian.Uint64(buf[0:8]),
		SymbolID:  binary.LittleEndian.Uint32(buf[8:12]),
		Price:     int64(binary.LittleEndian.Uint64(buf[16:24])),
		Quantity:  binary.LittleEndian.Uint64(buf[24:32]),
		Side:      orderbook.Side(buf[32]),
		Action:    OrderAction(buf[33]),
		Sequence:  binary.LittleEndian.Uint64(buf[40:48]),
	}, nil
}

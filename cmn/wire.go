package cmn

import (
	"encoding/binary"
	"math"

	"github.com/tinylib/msgp/msgp"
)

// BatchEntry is one (offset, operand, slot) triple inside a batched
// active-message payload. Operand is carried as the raw bit pattern of
// the element value -- a stable layout across participating PEs
// requires encoding by width rather than by Go type.
type BatchEntry struct {
	LocalOffset uint64
	Operand     uint64
	Slot        uint32
}

// BatchMessage is the canonical active-message wire schema:
// {op_kind:u8, array_id:u64, count:u32, entries: (local_offset:u64, operand:T, slot:u32)^count}
type BatchMessage struct {
	OpKind  OpKind
	ArrayID uint64
	Entries []BatchEntry
}

// MarshalMsg appends the canonical encoding of m to b, following the
// hand-written-but-msgp-runtime-backed convention this stack uses for
// wire structs (here: no codegen, but the same msgp.Append* primitives
// a generated MarshalMsg would call).
func (m *BatchMessage) MarshalMsg(b []byte) []byte {
	b = msgp.AppendUint8(b, uint8(m.OpKind))
	b = msgp.AppendUint64(b, m.ArrayID)
	b = msgp.AppendUint32(b, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		b = msgp.AppendUint64(b, e.LocalOffset)
		b = msgp.AppendUint64(b, e.Operand)
		b = msgp.AppendUint32(b, e.Slot)
	}
	return b
}

// UnmarshalMsg decodes a BatchMessage previously produced by MarshalMsg,
// returning the unconsumed remainder of b.
func (m *BatchMessage) UnmarshalMsg(b []byte) ([]byte, error) {
	opKind, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return b, err
	}
	arrayID, b, err := msgp.ReadUint64Bytes(b)
	if err != nil {
		return b, err
	}
	count, b, err := msgp.ReadUint32Bytes(b)
	if err != nil {
		return b, err
	}
	m.OpKind = OpKind(opKind)
	m.ArrayID = arrayID
	m.Entries = make([]BatchEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e BatchEntry
		e.LocalOffset, b, err = msgp.ReadUint64Bytes(b)
		if err != nil {
			return b, err
		}
		e.Operand, b, err = msgp.ReadUint64Bytes(b)
		if err != nil {
			return b, err
		}
		e.Slot, b, err = msgp.ReadUint32Bytes(b)
		if err != nil {
			return b, err
		}
		m.Entries = append(m.Entries, e)
	}
	return b, nil
}

// CompareEntry is one compare-exchange (or compare-exchange-epsilon)
// slot inside a batched active message. EpsilonBits is unused (zero)
// for plain CompareExchange.
type CompareEntry struct {
	LocalOffset uint64
	Expected    uint64
	Desired     uint64
	EpsilonBits uint64
	Slot        uint32
}

// CompareBatchMessage is the two-operand sibling of BatchMessage: the
// single-operand schema does not have room for both the expected and
// desired values a compare-exchange needs, so compare-exchange /
// compare-exchange-epsilon travel on their own message carrying both
// operands per entry (see DESIGN.md).
type CompareBatchMessage struct {
	OpKind  OpKind
	ArrayID uint64
	Entries []CompareEntry
}

func (m *CompareBatchMessage) MarshalMsg(b []byte) []byte {
	b = msgp.AppendUint8(b, uint8(m.OpKind))
	b = msgp.AppendUint64(b, m.ArrayID)
	b = msgp.AppendUint32(b, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		b = msgp.AppendUint64(b, e.LocalOffset)
		b = msgp.AppendUint64(b, e.Expected)
		b = msgp.AppendUint64(b, e.Desired)
		b = msgp.AppendUint64(b, e.EpsilonBits)
		b = msgp.AppendUint32(b, e.Slot)
	}
	return b
}

func (m *CompareBatchMessage) UnmarshalMsg(b []byte) ([]byte, error) {
	opKind, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return b, err
	}
	arrayID, b, err := msgp.ReadUint64Bytes(b)
	if err != nil {
		return b, err
	}
	count, b, err := msgp.ReadUint32Bytes(b)
	if err != nil {
		return b, err
	}
	m.OpKind = OpKind(opKind)
	m.ArrayID = arrayID
	m.Entries = make([]CompareEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e CompareEntry
		if e.LocalOffset, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return b, err
		}
		if e.Expected, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return b, err
		}
		if e.Desired, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return b, err
		}
		if e.EpsilonBits, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return b, err
		}
		if e.Slot, b, err = msgp.ReadUint32Bytes(b); err != nil {
			return b, err
		}
		m.Entries = append(m.Entries, e)
	}
	return b, nil
}

// ResultEntry carries one slot's outcome back from a batched active
// message: Value is the prior value (RMW) or the CAS-observed prior;
// Success is always true for plain RMW ops and meaningful only for
// compare-exchange results.
type ResultEntry struct {
	Slot    uint32
	Value   uint64
	Success bool
}

// ResultMessage is the dense slot->result vector an Operation Engine
// handler sends back in reply to a batched active message: the remote
// side processes every entry and returns a dense vector of slot→result
// rather than one reply per entry.
type ResultMessage struct {
	Entries []ResultEntry
}

func (m *ResultMessage) MarshalMsg(b []byte) []byte {
	b = msgp.AppendUint32(b, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		b = msgp.AppendUint32(b, e.Slot)
		b = msgp.AppendUint64(b, e.Value)
		b = msgp.AppendBool(b, e.Success)
	}
	return b
}

func (m *ResultMessage) UnmarshalMsg(b []byte) ([]byte, error) {
	count, b, err := msgp.ReadUint32Bytes(b)
	if err != nil {
		return b, err
	}
	m.Entries = make([]ResultEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e ResultEntry
		if e.Slot, b, err = msgp.ReadUint32Bytes(b); err != nil {
			return b, err
		}
		if e.Value, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return b, err
		}
		if e.Success, b, err = msgp.ReadBoolBytes(b); err != nil {
			return b, err
		}
		m.Entries = append(m.Entries, e)
	}
	return b, nil
}

// ToBits encodes a Dist-constrained value into its canonical 64-bit wire
// representation (zero-extended for narrower integer widths, signed
// ones included; IEEE-754 bit pattern for floats).
func ToBits[T Dist](v T) uint64 {
	switch x := any(v).(type) {
	case int8:
		return uint64(uint8(x))
	case int16:
		return uint64(uint16(x))
	case int32:
		return uint64(uint32(x))
	case int64:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case float32:
		return uint64(math.Float32bits(x))
	case float64:
		return math.Float64bits(x)
	default:
		panic("cmn.ToBits: unsupported type")
	}
}

// ReadBitsWidth decodes a width-byte (1, 2, 4, or 8) little-endian
// element starting at buf[0] into a 64-bit container, for Array
// Storage's raw shard buffers, which store elements at their native
// width rather than ToBits' always-64-bit wire form.
func ReadBitsWidth(buf []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	default:
		panic("cmn.ReadBitsWidth: unsupported width")
	}
}

// WriteBitsWidth is the inverse of ReadBitsWidth.
func WriteBitsWidth(buf []byte, width int, bits uint64) {
	switch width {
	case 1:
		buf[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(buf, bits)
	default:
		panic("cmn.WriteBitsWidth: unsupported width")
	}
}

// FromBits is the inverse of ToBits.
func FromBits[T Dist](bits uint64) T {
	var zero T
	switch any(zero).(type) {
	case int8:
		return any(int8(uint8(bits))).(T)
	case int16:
		return any(int16(uint16(bits))).(T)
	case int32:
		return any(int32(uint32(bits))).(T)
	case int64:
		return any(int64(bits)).(T)
	case uint8:
		return any(uint8(bits)).(T)
	case uint16:
		return any(uint16(bits)).(T)
	case uint32:
		return any(uint32(bits)).(T)
	case uint64:
		return any(bits).(T)
	case float32:
		return any(math.Float32frombits(uint32(bits))).(T)
	case float64:
		return any(math.Float64frombits(bits)).(T)
	default:
		panic("cmn.FromBits: unsupported type")
	}
}

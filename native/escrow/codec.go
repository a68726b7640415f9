package escrow

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	recordVersion    = 1
	recordHeaderSize = 1 + 20 + 20 + 8 + 1 + 1 + 1 + 7*8 + 2
)

// MaxRecordSize is the storage reserved for every record at creation.
var MaxRecordSize = RecordSize(MaxWorkReferenceBytes)

var errMalformedRecord = errors.New("escrow: malformed record")

// RecordSize returns the encoded size of a record whose work reference is n bytes.
func RecordSize(n int) int {
	return recordHeaderSize + n
}

// MarshalBinary encodes the record using the fixed big-endian layout.
func (e *Escrow) MarshalBinary() ([]byte, error) {
	if len(e.WorkReference) > MaxWorkReferenceBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrWorkLinkTooLong, len(e.WorkReference))
	}
	if !e.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", e.Status)
	}
	buf := make([]byte, RecordSize(len(e.WorkReference)))
	buf[0] = recordVersion
	off := 1
	off += copy(buf[off:], e.Payer[:])
	off += copy(buf[off:], e.Payee[:])
	binary.BigEndian.PutUint64(buf[off:], e.Amount)
	off += 8
	buf[off] = byte(e.Status)
	buf[off+1] = e.Bump
	buf[off+2] = e.TimeoutDays
	off += 3
	for _, ts := range e.timestamps() {
		binary.BigEndian.PutUint64(buf[off:], uint64(*ts))
		off += 8
	}
	binary.BigEndian.PutUint16(buf[off:], uint16(len(e.WorkReference)))
	off += 2
	copy(buf[off:], e.WorkReference)
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (e *Escrow) UnmarshalBinary(data []byte) error {
	if len(data) < recordHeaderSize {
		return fmt.Errorf("%w: %d bytes", errMalformedRecord, len(data))
	}
	if data[0] != recordVersion {
		return fmt.Errorf("%w: unknown version %d", errMalformedRecord, data[0])
	}
	var out Escrow
	off := 1
	off += copy(out.Payer[:], data[off:off+20])
	off += copy(out.Payee[:], data[off:off+20])
	out.Amount = binary.BigEndian.Uint64(data[off:])
	off += 8
	out.Status = Status(data[off])
	if !out.Status.Valid() {
		return fmt.Errorf("%w: status tag %d", errMalformedRecord, data[off])
	}
	out.Bump = data[off+1]
	out.TimeoutDays = data[off+2]
	off += 3
	for _, ts := range out.timestamps() {
		*ts = int64(binary.BigEndian.Uint64(data[off:]))
		off += 8
	}
	n := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	if n > MaxWorkReferenceBytes || off+n != len(data) {
		return fmt.Errorf("%w: work reference length %d for %d trailing bytes", errMalformedRecord, n, len(data)-off)
	}
	out.WorkReference = string(data[off:])
	*e = out
	return nil
}

func (e *Escrow) timestamps() []*int64 {
	return []*int64{
		&e.CreatedAt,
		&e.FundedAt,
		&e.SubmittedAt,
		&e.ApprovedAt,
		&e.CompletedAt,
		&e.DisputedAt,
		&e.RefundedAt,
	}
}

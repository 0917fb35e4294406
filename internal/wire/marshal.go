package wire

import "encoding/binary"

// MarshalRecord packs r into a 32-byte slot representation, field by field
// with explicit little-endian offsets — a manual-pack idiom for a hot-path
// struct rather than reflection.
func MarshalRecord(r Record) [RecordSize]byte {
	var buf [RecordSize]byte
	buf[0] = byte(r.Tag)
	buf[1] = byte(r.PID)
	buf[2] = byte(r.TID)
	if r.Terminated {
		buf[3] = 1
	}
	binary.LittleEndian.PutUint32(buf[4:8], r.ID)
	binary.LittleEndian.PutUint32(buf[8:12], r.Arg1)
	binary.LittleEndian.PutUint32(buf[12:16], r.Arg2)
	binary.LittleEndian.PutUint32(buf[16:20], r.Arg3)
	binary.LittleEndian.PutUint32(buf[20:24], r.Arg4)
	binary.LittleEndian.PutUint32(buf[24:28], r.OrigAddr)
	return buf
}

// UnmarshalRecord is the inverse of MarshalRecord.
func UnmarshalRecord(buf []byte) Record {
	_ = buf[RecordSize-1] // bounds check hint, mirrors uapi's eager-panic style
	return Record{
		Tag:        Tag(buf[0]),
		PID:        PID(buf[1]),
		TID:        TID(buf[2]),
		Terminated: buf[3] != 0,
		ID:         binary.LittleEndian.Uint32(buf[4:8]),
		Arg1:       binary.LittleEndian.Uint32(buf[8:12]),
		Arg2:       binary.LittleEndian.Uint32(buf[12:16]),
		Arg3:       binary.LittleEndian.Uint32(buf[16:20]),
		Arg4:       binary.LittleEndian.Uint32(buf[20:24]),
		OrigAddr:   binary.LittleEndian.Uint32(buf[24:28]),
	}
}

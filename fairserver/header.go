package fairserver

import "encoding/binary"

// putHeader writes a HeaderSize-byte toy-protocol header: body_len(4),
// kind(4), rid(8), all little-endian (matching the original C++ struct's
// native in-memory layout on its target platforms).
func putHeader(dst []byte, bodyLen, kind uint32, rid uint64) {
	binary.LittleEndian.PutUint32(dst[0:4], bodyLen)
	binary.LittleEndian.PutUint32(dst[4:8], kind)
	binary.LittleEndian.PutUint64(dst[8:16], rid)
}

func parseHeader(src []byte) (bodyLen, kind uint32, rid uint64) {
	bodyLen = binary.LittleEndian.Uint32(src[0:4])
	kind = binary.LittleEndian.Uint32(src[4:8])
	rid = binary.LittleEndian.Uint64(src[8:16])
	return
}

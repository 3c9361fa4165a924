package consensus

import "fmt"

// Molecule layout:
//
//	fixvec<T>: item_count u32le | items
//	dynvec<T>: total_size u32le | offsets u32le[n] | items
//	table:     same header as dynvec, one offset per field
//	option<T>: empty for None, otherwise the encoding of T
//
// Decoding is strict: a table must carry exactly its declared field count.
// Offsets are fully determined by the content, so every encoding accepted here
// is the canonical one.

const moleculeNumberSize = 4

func malformed(format string, args ...any) error {
	return lockerr(LOCK_ERR_MALFORMED_ENCODING, fmt.Sprintf(format, args...))
}

// parseDynItems splits a dynvec or table into its items.
func parseDynItems(b []byte, what string) ([][]byte, error) {
	off := 0
	total, err := readU32le(b, &off)
	if err != nil {
		return nil, malformed("%s: header truncated", what)
	}
	if uint64(total) != uint64(len(b)) {
		return nil, malformed("%s: total_size %d != %d", what, total, len(b))
	}
	if len(b) == moleculeNumberSize {
		return nil, nil
	}
	first, err := readU32le(b, &off)
	if err != nil {
		return nil, malformed("%s: first offset truncated", what)
	}
	if first%moleculeNumberSize != 0 || first < 2*moleculeNumberSize || uint64(first) > uint64(len(b)) {
		return nil, malformed("%s: invalid first offset %d", what, first)
	}
	count := int(first/moleculeNumberSize) - 1
	offsets := make([]int, count+1)
	offsets[0] = int(first)
	for i := 1; i < count; i++ {
		o, err := readU32le(b, &off)
		if err != nil {
			return nil, malformed("%s: offsets truncated", what)
		}
		offsets[i] = int(o)
	}
	offsets[count] = len(b)

	items := make([][]byte, count)
	for i := 0; i < count; i++ {
		if offsets[i] > offsets[i+1] {
			return nil, malformed("%s: offsets not ascending at %d", what, i)
		}
		items[i] = b[offsets[i]:offsets[i+1]]
	}
	return items, nil
}

func parseTable(b []byte, fieldCount int, what string) ([][]byte, error) {
	fields, err := parseDynItems(b, what)
	if err != nil {
		return nil, err
	}
	if len(fields) != fieldCount {
		return nil, malformed("%s: field count %d != %d", what, len(fields), fieldCount)
	}
	return fields, nil
}

// parseFixvec returns the item count and the item body of a fixvec.
func parseFixvec(b []byte, itemSize int, what string) (int, []byte, error) {
	off := 0
	n, err := readU32le(b, &off)
	if err != nil {
		return 0, nil, malformed("%s: item_count truncated", what)
	}
	if uint64(len(b)) != uint64(moleculeNumberSize)+uint64(n)*uint64(itemSize) {
		return 0, nil, malformed("%s: %d items of %d bytes do not fit %d bytes", what, n, itemSize, len(b))
	}
	return int(n), b[moleculeNumberSize:], nil
}

func parseBytes(b []byte, what string) ([]byte, error) {
	_, body, err := parseFixvec(b, 1, what)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), body...), nil
}

func parseBytesVec(b []byte, what string) ([][]byte, error) {
	items, err := parseDynItems(b, what)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		v, err := parseBytes(item, fmt.Sprintf("%s[%d]", what, i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseByte32(b []byte, what string) ([32]byte, error) {
	var out [32]byte
	if len(b) != 32 {
		return out, malformed("%s: Byte32 length %d", what, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func encodeDyn(items ...[]byte) []byte {
	headerSize := moleculeNumberSize * (len(items) + 1)
	total := headerSize
	for _, item := range items {
		total += len(item)
	}
	out := make([]byte, 0, total)
	out = appendU32le(out, uint32(total)) // #nosec G115 -- molecule sizes are u32 by definition.
	off := headerSize
	for _, item := range items {
		out = appendU32le(out, uint32(off)) // #nosec G115 -- bounded by total.
		off += len(item)
	}
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func encodeFixvec(count int, body []byte) []byte {
	out := make([]byte, 0, moleculeNumberSize+len(body))
	out = appendU32le(out, uint32(count)) // #nosec G115 -- molecule sizes are u32 by definition.
	return append(out, body...)
}

func encodeBytes(b []byte) []byte {
	return encodeFixvec(len(b), b)
}

func encodeBytesVec(items [][]byte) []byte {
	encoded := make([][]byte, len(items))
	for i, item := range items {
		encoded[i] = encodeBytes(item)
	}
	return encodeDyn(encoded...)
}

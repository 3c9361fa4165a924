package consensus

import "testing"

func TestReadBytes_NegativeLen(t *testing.T) {
	off := 0
	_, err := readBytes([]byte{}, &off, -1)
	wantErrCode(t, err, LOCK_ERR_MALFORMED_ENCODING)
}

func TestReadBytes_UnexpectedEOF(t *testing.T) {
	off := 0
	_, err := readBytes([]byte{0x01, 0x02}, &off, 3)
	wantErrCode(t, err, LOCK_ERR_MALFORMED_ENCODING)
}

func TestReadU16U32le(t *testing.T) {
	b := []byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12}
	off := 0
	v16, err := readU16le(b, &off)
	if err != nil || v16 != 0x1234 {
		t.Fatalf("readU16le=%x,%v", v16, err)
	}
	v32, err := readU32le(b, &off)
	if err != nil || v32 != 0x12345678 {
		t.Fatalf("readU32le=%x,%v", v32, err)
	}
	if off != len(b) {
		t.Fatalf("off=%d", off)
	}
	if _, err := readU16le(b, &off); err == nil {
		t.Fatalf("expected EOF")
	}
}

func TestAppendLE(t *testing.T) {
	got := appendU64le(appendU32le(appendU16le(nil, 0x0102), 0x03040506), 0x0708)
	want := []byte{0x02, 0x01, 0x06, 0x05, 0x04, 0x03, 0x08, 0x07, 0, 0, 0, 0, 0, 0}
	if string(got) != string(want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/766974616c79/zeta/pkg/bloom"
	"github.com/766974616c79/zeta/pkg/index"
)

func le64(vals ...uint64) []byte {
	out := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	return out
}

func TestRecordsLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, []string{"ab", "é"}); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	want := le64(2)
	want = append(want, le64(2)...)
	want = append(want, "ab"...)
	want = append(want, le64(2)...)
	want = append(want, "é"...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("unexpected encoding\n got %x\nwant %x", buf.Bytes(), want)
	}

	got, err := ReadRecords(&buf)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"ab", "é"}) {
		t.Errorf("unexpected records %q", got)
	}
}

func TestRecordsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, nil); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), le64(0)) {
		t.Errorf("expected a bare zero count, got %x", buf.Bytes())
	}
	got, err := ReadRecords(&buf)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestIndexLayout(t *testing.T) {
	ix := index.New()
	ix.Insert("b", 0)
	ix.Insert("b", 1)
	ix.Insert("a", 0)

	var buf bytes.Buffer
	if err := WriteIndex(&buf, []*index.Inverted{ix, index.New()}); err != nil {
		t.Fatalf("WriteIndex failed: %v", err)
	}

	want := le64(2, 2)
	want = append(want, le64(1)...)
	want = append(want, 'a')
	want = append(want, le64(1, 0)...)
	want = append(want, le64(1)...)
	want = append(want, 'b')
	want = append(want, le64(2, 0, 1)...)
	want = append(want, le64(0)...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("unexpected encoding\n got %x\nwant %x", buf.Bytes(), want)
	}

	got, err := ReadIndex(&buf)
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 block indexes, got %d", len(got))
	}
	if ords, _ := got[0].Lookup("b"); !reflect.DeepEqual(ords, []uint32{0, 1}) {
		t.Errorf("unexpected ordinals for b: %v", ords)
	}
	if got[1].Len() != 0 {
		t.Errorf("expected empty second index, got %d words", got[1].Len())
	}
}

func TestBloomLayout(t *testing.T) {
	f := bloom.New()
	f.Insert("hello")

	var buf bytes.Buffer
	if err := WriteBloom(&buf, []*bloom.Filter{f, bloom.New()}); err != nil {
		t.Fatalf("WriteBloom failed: %v", err)
	}
	if buf.Len() != 8+2*bloom.EncodedSize {
		t.Fatalf("expected %d bytes, got %d", 8+2*bloom.EncodedSize, buf.Len())
	}

	// "hello" probes bit 22985: 128-bit word 179, bit 73, which lands in
	// byte 9 (bit 1) of that word's 16-byte entry.
	raw := buf.Bytes()
	entry := raw[8+179*16 : 8+180*16]
	if entry[9]&(1<<1) == 0 {
		t.Errorf("expected bit 22985 set in 128-bit word 179, entry %x", entry)
	}

	got, err := ReadBloom(&buf)
	if err != nil {
		t.Fatalf("ReadBloom failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(got))
	}
	if !got[0].Test("hello") {
		t.Error("restored filter lost a word")
	}
	if got[1].Count() != 0 {
		t.Error("expected second filter empty")
	}
}

func TestCorruption(t *testing.T) {
	validRecords := func() []byte {
		var buf bytes.Buffer
		WriteRecords(&buf, []string{"hello world", "x"})
		return buf.Bytes()
	}()

	invalidUTF8 := append(le64(1, 2), 0xff, 0xfe)
	lengthTooLong := append(le64(1, 100), "short"...)
	dupWord := append(le64(1, 2, 1), 'a')
	dupWord = append(dupWord, le64(1, 0, 1)...)
	dupWord = append(dupWord, 'a')
	dupWord = append(dupWord, le64(1, 1)...)
	descending := append(le64(1, 1, 1), 'a')
	descending = append(descending, le64(2, 5, 3)...)

	tests := []struct {
		name string
		read func([]byte) error
		data []byte
	}{
		{"records empty file", readRecords, nil},
		{"records truncated", readRecords, validRecords[:len(validRecords)-3]},
		{"records trailing bytes", readRecords, append(append([]byte{}, validRecords...), 0)},
		{"records invalid utf8", readRecords, invalidUTF8},
		{"records length too long", readRecords, lengthTooLong},
		{"records huge length", readRecords, le64(1, 1<<63+5)},
		{"index truncated", readIndex, le64(1, 1)},
		{"index invalid utf8 word", readIndex, append(le64(1, 1, 1), 0xff)},
		{"index duplicate word", readIndex, dupWord},
		{"index descending ordinals", readIndex, descending},
		{"index ordinal out of range", readIndex, append(append(le64(1, 1, 1), 'a'), le64(1, 1<<40)...)},
		{"bloom truncated", readBloom, append(le64(1), make([]byte, 100)...)},
		{"bloom missing block", readBloom, le64(2)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.read(tc.data)
			if !errors.Is(err, ErrCorruption) {
				t.Errorf("expected ErrCorruption, got %v", err)
			}
		})
	}
}

func readRecords(b []byte) error {
	_, err := ReadRecords(bytes.NewReader(b))
	return err
}

func readIndex(b []byte) error {
	_, err := ReadIndex(bytes.NewReader(b))
	return err
}

func readBloom(b []byte) error {
	_, err := ReadBloom(bytes.NewReader(b))
	return err
}

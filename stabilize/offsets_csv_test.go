package stabilize

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadOffsetsExt(t *testing.T) {
	o := NewOffsets(2, 3)
	o.Set(1, 2, [3]float64{0.1, -1.0 / 3, 7})
	o.Set(2, 3, [3]float64{1e-300, 240, -12.5})
	dir := t.TempDir()
	for _, ext := range []string{".csv", ".msgpack", ".gob", ".json"} {
		fname := filepath.Join(dir, "offsets"+ext)
		require.NoError(t, SaveOffsetsExt(fname, o), ext)
		got, err := LoadOffsetsExt(fname)
		require.NoError(t, err, ext)
		assert.Equal(t, o, got, ext)
	}
}

func TestDecodeOffsetsCSV(t *testing.T) {
	var buf bytes.Buffer
	o := NewOffsets(1, 1)
	o.Set(1, 1, [3]float64{1, 2, 3})
	require.NoError(t, EncodeOffsetsCSV(&buf, o))
	assert.Equal(t, "size,1,1\noffset,0,0,0,0,0\noffset,0,1,0,0,0\noffset,1,0,0,0,0\noffset,1,1,1,2,3\n", buf.String())

	bad := []string{
		"",
		"offset,0,0,1,2,3\n",
		"size,1,1\nsize,1,1\n",
		"size,1,1\noffset,2,0,1,2,3\n",
		"size,1,1\noffset,0,0,1,2\n",
		"size,1,1\nfoo,0\n",
	}
	for _, s := range bad {
		_, err := DecodeOffsetsCSV(strings.NewReader(s))
		assert.Error(t, err, "%q", s)
	}
}

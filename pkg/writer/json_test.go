package writer

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter[sample]()
	require.NoError(t, w.Write(sample{Name: "Array", Size: 1024}, &buf))

	var got sample
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "Array", got.Name)
	assert.Equal(t, int64(1024), got.Size)
}

func TestPrettyJSONWriterIndents(t *testing.T) {
	var buf bytes.Buffer
	w := NewPrettyJSONWriter[sample]()
	require.NoError(t, w.Write(sample{Name: "x"}, &buf))
	assert.Contains(t, buf.String(), "\n  ")
}

func TestGzipWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gw := NewGzipWriter[sample]()
	require.NoError(t, gw.Write(sample{Name: "Timer", Size: 96}, &buf))

	data, err := ReadMaybeGzip(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var got sample
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Timer", got.Name)
}

func TestReadMaybeGzipPassthrough(t *testing.T) {
	raw := []byte(`{"name":"plain"}`)
	data, err := ReadMaybeGzip(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

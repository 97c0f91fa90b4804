package jsonl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	D string `json:"d"`
	N int    `json:"n"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	in := "{\"d\":\"a\",\"n\":1}\n\n{\"d\":\"b\",\"n\":2}\r\n   \n{\"d\":\"c\",\"n\":3}"
	got, err := Decode[row](strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []row{{D: "a", N: 1}, {D: "b", N: 2}, {D: "c", N: 3}}, got)
}

func TestDecodeEmpty(t *testing.T) {
	t.Parallel()

	got, err := Decode[row](strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeLongLine(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 256<<10)
	got, err := Decode[row](strings.NewReader(`{"d":"` + long + `"}` + "\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].D, len(long))
}

func TestDecodeBadLine(t *testing.T) {
	t.Parallel()

	_, err := Decode[row](strings.NewReader("{\"d\":\"a\"}\nnot json\n"))
	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 2, lineErr.Line)
}

func TestEachStops(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	seen := 0
	err := Each(strings.NewReader("{}\n{}\n{}\n"), func(row) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

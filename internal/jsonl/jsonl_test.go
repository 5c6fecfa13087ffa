package jsonl

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Handle string `json:"handle"`
	Count  int    `json:"count"`
}

func TestWriterThenDecodeAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	w, err := CreateWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(sample{Handle: "a", Count: 1}))
	require.NoError(t, w.Write(sample{Handle: "b", Count: 2}))
	require.NoError(t, w.Close())

	got, err := DecodeAll[sample](path, nil)
	require.NoError(t, err)
	require.Equal(t, []sample{{Handle: "a", Count: 1}, {Handle: "b", Count: 2}}, got)
}

func TestDecodeAllSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	w, err := CreateWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(sample{Handle: "a", Count: 1}))
	_, err = w.buf.WriteString("not json at all\n")
	require.NoError(t, err)
	require.NoError(t, w.Write(sample{Handle: "b", Count: 2}))
	require.NoError(t, w.Close())

	var skipped []int
	got, err := DecodeAll[sample](path, func(lineNumber int, line string, parseErr error) error {
		skipped = append(skipped, lineNumber)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []sample{{Handle: "a", Count: 1}, {Handle: "b", Count: 2}}, got)
	require.Equal(t, []int{2}, skipped)
}

func TestDecodeAllAbortsWithoutHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	w, err := CreateWriter(path)
	require.NoError(t, err)
	_, err = w.buf.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = DecodeAll[sample](path, nil)
	require.Error(t, err)
}

func TestDecodeEachCanAbortViaOnErr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	w, err := CreateWriter(path)
	require.NoError(t, err)
	_, err = w.buf.WriteString("bad\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	boom := errors.New("boom")
	err = DecodeEach[sample](path, func(int, sample) error { return nil }, func(int, string, error) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

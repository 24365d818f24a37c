package ipc

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"method":"GET","path":"/health"}`)
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameLengthPrefixIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hi")))
	raw := buf.Bytes()
	require.GreaterOrEqual(t, len(raw), 6)
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(raw[:4]))
	assert.Equal(t, "hi", string(raw[4:]))
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	buf.Write(hdr[:])

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrameRejectsOversized(t *testing.T) {
	err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFramePartialBody(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 100)
	buf.Write(hdr[:])
	buf.WriteString("only a few bytes")

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameEOFOnEmptyStream(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageInvalidJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("{not json")))
	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := Message{Method: "POST", Path: "/connector-lifecycle/install", Data: []byte(`{"id":"fs"}`), RequestID: "r-1"}
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Method, got.Method)
	assert.Equal(t, msg.Path, got.Path)
	assert.Equal(t, msg.RequestID, got.RequestID)
	assert.JSONEq(t, string(msg.Data), string(got.Data))
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := Fail("r-2", NewError(CodeNotFound, "no route"))
	require.NoError(t, WriteResponse(&buf, resp))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, "r-2", got.RequestID)
	require.NotNil(t, got.Err)
	assert.Equal(t, CodeNotFound, got.Err.Code)
}

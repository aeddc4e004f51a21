package tftp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRRQRoundTrip(t *testing.T) {
	p := NewRRQ("file.txt", ModeOctet)
	buf, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, RRQ, got.Opcode)
	assert.Equal(t, "file.txt", got.Filename)
	assert.Equal(t, ModeOctet, got.Mode)
}

func TestDecodeLowercasesMode(t *testing.T) {
	p := Packet{Opcode: WRQ, Filename: "x", Mode: "OCTET"}
	buf, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, ModeOctet, got.Mode)
}

func TestEncodeDecodeDATARoundTrip(t *testing.T) {
	payload := []byte("hello world")
	buf, err := Encode(NewDATA(BlockNumber(7), payload))
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, DATA, got.Opcode)
	assert.Equal(t, BlockNumber(7), got.Block)
	assert.Equal(t, payload, got.Payload)
}

func TestEncodeDATAEmptyPayload(t *testing.T) {
	buf, err := Encode(NewDATA(BlockNumber(1), nil))
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestEncodeDATARejectsOversizePayload(t *testing.T) {
	_, err := Encode(NewDATA(BlockNumber(1), make([]byte, 513)))
	assert.ErrorIs(t, err, ErrIllegalBuild)
}

func TestEncodeDecodeACKRoundTrip(t *testing.T) {
	buf, err := Encode(NewACK(BlockNumber(42)))
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, ACK, got.Opcode)
	assert.Equal(t, BlockNumber(42), got.Block)
}

func TestEncodeDecodeERRORRoundTrip(t *testing.T) {
	buf, err := Encode(NewERROR(ErrFileNotFound, "nope"))
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, ERROR, got.Opcode)
	assert.Equal(t, ErrFileNotFound, got.ErrorCode)
	assert.Equal(t, "nope", got.ErrorMsg)
}

func TestDecodeRejectsTooShort(t *testing.T) {
	_, err := Decode([]byte{0, 1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	_, err := Decode([]byte{0, 99, 0, 0})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRRQMissingNUL(t *testing.T) {
	buf := []byte{0, byte(RRQ)}
	buf = append(buf, "nofilenamenul"...)
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeRejectsOverMaxDatagram(t *testing.T) {
	_, err := Encode(Packet{Opcode: RRQ, Filename: strings.Repeat("x", maxDatagramSize), Mode: ModeOctet})
	assert.ErrorIs(t, err, ErrIllegalBuild)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("NetASCII")
	require.NoError(t, err)
	assert.Equal(t, ModeNetASCII, m)

	_, err = ParseMode("mail")
	assert.Error(t, err)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}

package udrone

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := marshalData(StatusData{Code: 0})
	require.NoError(t, err)

	e := &Envelope{From: "d1", To: "HostABCDEF", Type: TypeStatus, Seq: 42, Data: data}
	raw, err := encodeEnvelope(e)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "  ")

	decoded, ok := decodeEnvelope(raw)
	require.True(t, ok)
	require.Equal(t, e.From, decoded.From)
	require.Equal(t, e.To, decoded.To)
	require.Equal(t, e.Type, decoded.Type)
	require.Equal(t, e.Seq, decoded.Seq)
	require.JSONEq(t, string(e.Data), string(decoded.Data))
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	_, ok := decodeEnvelope([]byte("not json"))
	require.False(t, ok)

	_, ok = decodeEnvelope([]byte(`{"to":"x","type":"status","seq":1}`))
	require.False(t, ok, "missing from must be rejected")

	_, ok = decodeEnvelope([]byte(`{"from":"d1","to":"x","seq":1}`))
	require.False(t, ok, "missing type must be rejected")
}

func TestDecodeEnvelopeRejectsOversize(t *testing.T) {
	huge := strings.Repeat("a", MaxDatagramSize+1)
	raw := []byte(`{"from":"d1","to":"x","type":"status","seq":1,"data":"` + huge + `"}`)
	_, ok := decodeEnvelope(raw)
	require.False(t, ok)
}

func TestMatchesFilter(t *testing.T) {
	e := &Envelope{From: "d1", To: "HostABCDEF", Type: TypeStatus, Seq: 7}

	require.True(t, matchesFilter(e, "HostABCDEF", nil, ""))
	require.False(t, matchesFilter(e, "HostOther", nil, ""))

	seq := uint32(7)
	require.True(t, matchesFilter(e, "HostABCDEF", &seq, ""))
	wrongSeq := uint32(8)
	require.False(t, matchesFilter(e, "HostABCDEF", &wrongSeq, ""))

	require.True(t, matchesFilter(e, "HostABCDEF", nil, TypeStatus))
	require.False(t, matchesFilter(e, "HostABCDEF", nil, TypeAccept))
}

func TestDecodeStatusData(t *testing.T) {
	raw, err := json.Marshal(StatusData{Code: 3, ErrStr: "bad arg"})
	require.NoError(t, err)
	e := &Envelope{Type: TypeStatus, Data: raw}

	sd, ok := decodeStatusData(e)
	require.True(t, ok)
	require.Equal(t, 3, sd.Code)
	require.Equal(t, "bad arg", sd.ErrStr)

	e2 := &Envelope{Type: TypeAccept, Data: raw}
	_, ok = decodeStatusData(e2)
	require.False(t, ok, "non-status envelopes have no status data")
}

package packet_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamkit.dev/core/internal/packet"
)

func TestMetadataCloneDoesNotAlias(t *testing.T) {
	m := packet.Metadata{"turn_id": "t1"}
	clone := m.Clone()
	clone["turn_id"] = "t2"
	require.Equal(t, "t1", m["turn_id"])
}

func TestMetadataWithTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := packet.Metadata{}.WithTimestamp(now)
	got, ok := m.Timestamp()
	require.True(t, ok)
	require.True(t, got.Equal(now))
}

func TestBytesSharedAcrossClones(t *testing.T) {
	b := packet.NewBytes([]byte("hello"))
	p1 := packet.Binary{Data: b}
	p2 := packet.Binary{Data: b}
	require.Same(t, p1.Data, p2.Data)
	require.Equal(t, "hello", string(p2.Data.Bytes()))
}

func TestTextKindAndMeta(t *testing.T) {
	p := packet.Text{Data: packet.NewStr("HELLO"), Meta_: packet.Metadata{"correlation_id": "c1"}}
	require.Equal(t, packet.KindText, p.Kind())
	cid, ok := p.Meta().CorrelationID()
	require.True(t, ok)
	require.Equal(t, "c1", cid)
}

package packet_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamkit.dev/core/internal/packet"
)

func TestCompatible_AnyMatchesEveryDiscriminant(t *testing.T) {
	accepted := []packet.TypeDescriptor{packet.Any()}
	for _, p := range []packet.Packet{
		packet.RawAudio{Format: packet.AudioFormat{SampleRate: 48000, Channels: 2, SampleFormat: packet.SampleFormatF32}},
		packet.Video{Format: packet.VideoFormat{Width: 1920, Height: 1080, PixelFormat: packet.PixelFormatNV12}},
		packet.Text{},
		packet.Binary{},
		packet.Custom{TypeID: "vendor.widget"},
	} {
		assert.True(t, packet.Compatible(packet.Produced(p), accepted), "Any must match %T", p)
	}
}

func TestCompatible_WildcardSampleRateMatchesAny(t *testing.T) {
	accepted := []packet.TypeDescriptor{{Discriminant: packet.KindRawAudio, Audio: packet.AudioFormat{SampleRate: 0}}}
	produced := packet.Produced(packet.RawAudio{Format: packet.AudioFormat{SampleRate: 16000, Channels: 1, SampleFormat: packet.SampleFormatS16}})
	require.True(t, packet.Compatible(produced, accepted))
}

func TestCompatible_ConcreteSampleRateRejectsMismatch(t *testing.T) {
	accepted := []packet.TypeDescriptor{{Discriminant: packet.KindRawAudio, Audio: packet.AudioFormat{SampleRate: 16000}}}
	produced := packet.Produced(packet.RawAudio{Format: packet.AudioFormat{SampleRate: 48000}})
	require.False(t, packet.Compatible(produced, accepted))
}

func TestCompatible_DiscriminantMismatchRejected(t *testing.T) {
	accepted := []packet.TypeDescriptor{{Discriminant: packet.KindVideo}}
	produced := packet.Produced(packet.RawAudio{})
	require.False(t, packet.Compatible(produced, accepted))
}

// TestCompatible_ReflexiveForConcreteDescriptors checks the reflexivity
// claim of spec §4.1: a descriptor with no wildcard fields always matches
// itself when used as both the produced type and its own accepted entry.
func TestCompatible_ReflexiveForConcreteDescriptors(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("concrete audio descriptor matches itself", prop.ForAll(
		func(rate, channels int) bool {
			d := packet.TypeDescriptor{
				Discriminant: packet.KindRawAudio,
				Audio:        packet.AudioFormat{SampleRate: rate + 1, Channels: channels + 1, SampleFormat: packet.SampleFormatF32},
			}
			return packet.Compatible(d, []packet.TypeDescriptor{d})
		},
		gen.IntRange(0, 192000),
		gen.IntRange(0, 16),
	))

	properties.TestingRun(t)
}

package packet

// SampleFormat identifies the in-memory sample layout of a RawAudio or
// OpusAudio packet. The zero value SampleFormatAny is the wildcard sentinel
// used only inside accepted-type sets.
type SampleFormat string

const (
	SampleFormatAny SampleFormat = ""
	SampleFormatF32 SampleFormat = "f32"
	SampleFormatS16 SampleFormat = "s16"
	SampleFormatS24 SampleFormat = "s24"
	SampleFormatS32 SampleFormat = "s32"
)

// AudioFormat describes a raw audio signal. A zero field is the wildcard
// sentinel: SampleRate == 0 means "any sample rate", Channels == 0 means
// "any channel count", SampleFormat == SampleFormatAny means "any format".
// Concrete packets must never carry a wildcard field; only pin declarations
// (accepted-type sets) do.
type AudioFormat struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

// PixelFormat identifies the in-memory layout of a Video packet's frame.
type PixelFormat string

const (
	PixelFormatAny  PixelFormat = ""
	PixelFormatI420 PixelFormat = "i420"
	PixelFormatNV12 PixelFormat = "nv12"
	PixelFormatRGBA PixelFormat = "rgba"
)

// VideoFormat describes a decoded video frame. Zero fields are wildcards,
// same convention as AudioFormat.
type VideoFormat struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
}

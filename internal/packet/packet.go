// Package packet defines the closed set of data-plane packet variants that
// flow between pipeline nodes, the audio/video format descriptors attached to
// them, and the compatibility relation used at graph-build time to decide
// whether a producer's output may be wired to a consumer's input pin.
//
// Packet variants are closed by design (spec §4.1): adding a new kind is a
// source change here, never a runtime registration. Binary and Text carry
// their payload behind an immutable view shared by pointer so that fan-out
// through a pin distributor never copies the underlying bytes.
package packet

import "time"

// Kind discriminates the packet variants. KindAny is a wildcard discriminant
// that only ever appears inside a pin's accepted-type set, never on a
// concrete packet.
type Kind string

const (
	KindRawAudio      Kind = "raw_audio"
	KindOpusAudio     Kind = "opus_audio"
	KindVideo         Kind = "video"
	KindBinary        Kind = "binary"
	KindText          Kind = "text"
	KindTranscription Kind = "transcription"
	KindCustom        Kind = "custom"
	KindEndOfStream   Kind = "end_of_stream"

	// KindAny is the wildcard discriminant for accepted-type sets (§4.1): a
	// pin declaring KindAny in its accepted set matches every produced kind.
	KindAny Kind = "any"
)

// Metadata is the cheap-copy side channel carried by every packet variant.
// Keys are free-form; the well-known ones below have typed accessors.
type Metadata map[string]any

const (
	metaTimestamp     = "timestamp"
	metaCorrelationID = "correlation_id"
	metaTurnID        = "turn_id"
)

// Clone returns a shallow copy of m suitable for attaching to a derived
// packet without aliasing the producer's map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Timestamp returns the metaTimestamp entry, if present and well-typed.
func (m Metadata) Timestamp() (time.Time, bool) {
	v, ok := m[metaTimestamp].(time.Time)
	return v, ok
}

// WithTimestamp returns a copy of m with the timestamp entry set.
func (m Metadata) WithTimestamp(t time.Time) Metadata {
	out := m.Clone()
	if out == nil {
		out = Metadata{}
	}
	out[metaTimestamp] = t
	return out
}

// CorrelationID returns the correlation id entry, if present.
func (m Metadata) CorrelationID() (string, bool) {
	v, ok := m[metaCorrelationID].(string)
	return v, ok
}

// TurnID returns the turn id entry, if present.
func (m Metadata) TurnID() (string, bool) {
	v, ok := m[metaTurnID].(string)
	return v, ok
}

type (
	// Packet is the marker interface implemented by every data-plane variant.
	// Consumers type-switch on the concrete type (or call Kind for routing)
	// rather than relying on reflection.
	Packet interface {
		// Kind returns the discriminant for this packet.
		Kind() Kind
		// Meta returns the packet's metadata map, which may be nil.
		Meta() Metadata
		isPacket()
	}

	// RawAudio carries uncompressed PCM samples described by Format.
	RawAudio struct {
		Format AudioFormat
		Frame  []float32
		Meta_  Metadata
	}

	// OpusAudio carries Opus-encoded bytes plus the format of the decoded signal.
	OpusAudio struct {
		Format AudioFormat
		Bytes  *Bytes
		Meta_  Metadata
	}

	// Video carries a single decoded video frame.
	Video struct {
		Format VideoFormat
		Frame  []byte
		Meta_  Metadata
	}

	// Binary carries an opaque byte payload behind a shared immutable view.
	Binary struct {
		Data  *Bytes
		Meta_ Metadata
	}

	// Text carries an immutable string payload behind a shared view.
	Text struct {
		Data  *Str
		Meta_ Metadata
	}

	// Transcription carries structured speech-to-text output.
	Transcription struct {
		Data  TranscriptionData
		Meta_ Metadata
	}

	// Custom carries a plugin-defined payload identified by TypeID. The
	// engine never interprets Payload; it only uses TypeID for routing.
	Custom struct {
		TypeID  string
		Payload any
		Meta_   Metadata
	}

	// EndOfStream is the terminal sentinel delivered on every output pin once
	// a node has flushed and is shutting down (spec §4.5, §8).
	EndOfStream struct {
		Meta_ Metadata
	}
)

func (RawAudio) isPacket()      {}
func (OpusAudio) isPacket()     {}
func (Video) isPacket()         {}
func (Binary) isPacket()        {}
func (Text) isPacket()          {}
func (Transcription) isPacket() {}
func (Custom) isPacket()        {}
func (EndOfStream) isPacket()   {}

func (p RawAudio) Kind() Kind      { return KindRawAudio }
func (p OpusAudio) Kind() Kind     { return KindOpusAudio }
func (p Video) Kind() Kind         { return KindVideo }
func (p Binary) Kind() Kind        { return KindBinary }
func (p Text) Kind() Kind          { return KindText }
func (p Transcription) Kind() Kind { return KindTranscription }
func (p Custom) Kind() Kind        { return KindCustom }
func (p EndOfStream) Kind() Kind   { return KindEndOfStream }

func (p RawAudio) Meta() Metadata      { return p.Meta_ }
func (p OpusAudio) Meta() Metadata     { return p.Meta_ }
func (p Video) Meta() Metadata         { return p.Meta_ }
func (p Binary) Meta() Metadata        { return p.Meta_ }
func (p Text) Meta() Metadata          { return p.Meta_ }
func (p Transcription) Meta() Metadata { return p.Meta_ }
func (p Custom) Meta() Metadata        { return p.Meta_ }
func (p EndOfStream) Meta() Metadata   { return p.Meta_ }

// TranscriptionData is the structured payload of a Transcription packet.
type TranscriptionData struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Words      []Word
}

// Word is a single timed token within a TranscriptionData.
type Word struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Bytes is an immutable view over a byte payload shared by pointer across
// every subscriber a distributor fans a packet out to, so broadcast never
// copies the backing array. Lifetime is ordinary Go GC, not manual counting.
type Bytes struct {
	buf []byte
}

// NewBytes wraps buf in a fresh immutable view. buf is taken by reference,
// not copied: callers must not mutate it afterwards.
func NewBytes(buf []byte) *Bytes {
	return &Bytes{buf: buf}
}

// Bytes returns the underlying payload. Callers must treat it as read-only.
func (b *Bytes) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.buf
}

// Len returns the payload length.
func (b *Bytes) Len() int {
	if b == nil {
		return 0
	}
	return len(b.buf)
}

// Str is an immutable view over a string payload, shared by pointer like
// Bytes.
type Str struct {
	s string
}

// NewStr wraps s in a cheap-copy immutable view.
func NewStr(s string) *Str { return &Str{s: s} }

// String returns the underlying string.
func (s *Str) String() string {
	if s == nil {
		return ""
	}
	return s.s
}

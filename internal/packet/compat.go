package packet

import "fmt"

// TypeDescriptor describes one entry of a pin's accepted-type set, or the
// concrete type produced by a packet. Discriminant KindAny is only ever
// legal inside an accepted set; Produced never returns it.
//
// The zero value of each embedded format is its own wildcard sentinel, so a
// descriptor built for an accepted set can mix wildcard and concrete fields
// freely (spec §4.1: "a pin accepting AudioFormat{sample_rate=0} matches any
// sample rate").
type TypeDescriptor struct {
	Discriminant Kind
	Audio        AudioFormat // meaningful when Discriminant is KindRawAudio or KindOpusAudio
	Video        VideoFormat // meaningful when Discriminant is KindVideo
	CustomType   string      // meaningful when Discriminant is KindCustom; "" is the wildcard
}

// Any is the wildcard accepted-set entry that matches every produced kind.
func Any() TypeDescriptor { return TypeDescriptor{Discriminant: KindAny} }

// Produced returns the concrete TypeDescriptor for a packet as actually
// emitted by a node, used by the graph builder to check an edge's producer
// side (spec §4.1, §4.4 step 4).
func Produced(p Packet) TypeDescriptor {
	switch v := p.(type) {
	case RawAudio:
		return TypeDescriptor{Discriminant: KindRawAudio, Audio: v.Format}
	case OpusAudio:
		return TypeDescriptor{Discriminant: KindOpusAudio, Audio: v.Format}
	case Video:
		return TypeDescriptor{Discriminant: KindVideo, Video: v.Format}
	case Binary:
		return TypeDescriptor{Discriminant: KindBinary}
	case Text:
		return TypeDescriptor{Discriminant: KindText}
	case Transcription:
		return TypeDescriptor{Discriminant: KindTranscription}
	case Custom:
		return TypeDescriptor{Discriminant: KindCustom, CustomType: v.TypeID}
	case EndOfStream:
		return TypeDescriptor{Discriminant: KindEndOfStream}
	default:
		return TypeDescriptor{Discriminant: Kind(fmt.Sprintf("unknown:%T", p))}
	}
}

// Compatible implements the compatibility relation of spec §4.1: a produced
// type is compatible with an accepted-type set if some entry in the set
// shares its discriminant (or is the KindAny wildcard) and every descriptor
// field of that entry is either its wildcard sentinel or exactly equal to
// the corresponding field of the produced type. The relation is reflexive
// but not transitive across wildcards; callers (the graph builder) apply it
// pairwise per edge, never by composing two pin declarations.
func Compatible(produced TypeDescriptor, accepted []TypeDescriptor) bool {
	for _, a := range accepted {
		if matchesOne(produced, a) {
			return true
		}
	}
	return false
}

func matchesOne(produced, accepted TypeDescriptor) bool {
	if accepted.Discriminant == KindAny {
		return true
	}
	if accepted.Discriminant != produced.Discriminant {
		return false
	}
	switch accepted.Discriminant {
	case KindRawAudio, KindOpusAudio:
		return matchesAudio(produced.Audio, accepted.Audio)
	case KindVideo:
		return matchesVideo(produced.Video, accepted.Video)
	case KindCustom:
		return accepted.CustomType == "" || accepted.CustomType == produced.CustomType
	default:
		return true
	}
}

func matchesAudio(produced, accepted AudioFormat) bool {
	if accepted.SampleRate != 0 && accepted.SampleRate != produced.SampleRate {
		return false
	}
	if accepted.Channels != 0 && accepted.Channels != produced.Channels {
		return false
	}
	if accepted.SampleFormat != SampleFormatAny && accepted.SampleFormat != produced.SampleFormat {
		return false
	}
	return true
}

func matchesVideo(produced, accepted VideoFormat) bool {
	if accepted.Width != 0 && accepted.Width != produced.Width {
		return false
	}
	if accepted.Height != 0 && accepted.Height != produced.Height {
		return false
	}
	if accepted.PixelFormat != PixelFormatAny && accepted.PixelFormat != produced.PixelFormat {
		return false
	}
	return true
}

// Diff renders a human-readable mismatch description for TypeMismatch
// errors (spec §4.4 step 4, §7).
func Diff(produced TypeDescriptor, accepted []TypeDescriptor) string {
	return fmt.Sprintf("produced %s is not compatible with any of accepted %s", describe(produced), describeAll(accepted))
}

func describe(d TypeDescriptor) string {
	switch d.Discriminant {
	case KindRawAudio, KindOpusAudio:
		return fmt.Sprintf("%s{rate=%d,ch=%d,fmt=%s}", d.Discriminant, d.Audio.SampleRate, d.Audio.Channels, formatOrAny(string(d.Audio.SampleFormat)))
	case KindVideo:
		return fmt.Sprintf("%s{w=%d,h=%d,fmt=%s}", d.Discriminant, d.Video.Width, d.Video.Height, formatOrAny(string(d.Video.PixelFormat)))
	case KindCustom:
		return fmt.Sprintf("%s{type=%s}", d.Discriminant, formatOrAny(d.CustomType))
	default:
		return string(d.Discriminant)
	}
}

func describeAll(ds []TypeDescriptor) string {
	out := "["
	for i, d := range ds {
		if i > 0 {
			out += ", "
		}
		out += describe(d)
	}
	return out + "]"
}

func formatOrAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}

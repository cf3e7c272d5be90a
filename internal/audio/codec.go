package audio

import (
	"fmt"
	"strings"
)

// Codec describes one requestable output format: container extension, MIME
// type, the bit rate used for remaining-time interpolation, and the encoder
// parameters handed to the capture engine.
type Codec struct {
	Name      string
	MIMEType  string
	Extension string

	// BitRate is the nominal encoder output in bits/sec. Zero means the
	// rate is uncompressed PCM and must be derived from sample rate and
	// channel count (see EffectiveBitRate).
	BitRate int

	// Defaults applied when the caller does not override them.
	SampleRate int
	Channels   int

	// Encoder and container names for the FFmpeg engine.
	Encoder   string
	Container string
}

// The codec table. Bit rates for the speech codecs come from the device
// encoder profiles; they feed the countdown interpolation, not the encoder.
var codecs = []Codec{
	{Name: "amr", MIMEType: "audio/amr", Extension: ".amr", BitRate: 5900, SampleRate: 8000, Channels: 1, Encoder: "libopencore_amrnb", Container: "amr"},
	{Name: "amr-wb", MIMEType: "audio/amr-wb", Extension: ".awb", BitRate: 16000, SampleRate: 16000, Channels: 1, Encoder: "libvo_amrwbenc", Container: "amr"},
	{Name: "evrc", MIMEType: "audio/evrc", Extension: ".qcp", BitRate: 8500, SampleRate: 8000, Channels: 1, Encoder: "libopencore_amrnb", Container: "amr"},
	{Name: "qcelp", MIMEType: "audio/qcelp", Extension: ".qcp", BitRate: 13300, SampleRate: 8000, Channels: 1, Encoder: "libopencore_amrnb", Container: "amr"},
	{Name: "3gpp", MIMEType: "audio/3gpp", Extension: ".3gpp", BitRate: 5900, SampleRate: 8000, Channels: 1, Encoder: "libopencore_amrnb", Container: "3gp"},
	{Name: "aac", MIMEType: "audio/aac", Extension: ".m4a", BitRate: 96000, SampleRate: 48000, Channels: 2, Encoder: "aac", Container: "mp4"},
	{Name: "wav", MIMEType: "audio/wav", Extension: ".wav", BitRate: 0, SampleRate: 48000, Channels: 2, Encoder: "pcm_s16le", Container: "wav"},
}

// CodecByName resolves a format name from the preference store.
func CodecByName(name string) (Codec, error) {
	for _, c := range codecs {
		if c.Name == name {
			return c, nil
		}
	}
	return Codec{}, NewFault(FaultUnsupportedFormat, fmt.Errorf("unknown output format: %s", name))
}

// CodecByMIME resolves a caller-requested MIME type. The request is never
// silently replaced with a default codec: an unknown type is an
// unsupported-format fault the caller has to see. "audio/*" and "*/*"
// mean no preference and resolve to the 3gpp default.
func CodecByMIME(mimeType string) (Codec, error) {
	switch mimeType {
	case "", "audio/*", "*/*":
		return CodecByName("3gpp")
	}
	for _, c := range codecs {
		if strings.EqualFold(c.MIMEType, mimeType) {
			return c, nil
		}
	}
	return Codec{}, NewFault(FaultUnsupportedFormat, fmt.Errorf("unsupported MIME type: %s", mimeType))
}

// EffectiveBitRate returns the bit rate to use for remaining-time
// interpolation, deriving the PCM rate when the codec has no nominal one.
func (c Codec) EffectiveBitRate(sampleRate, channels int) int {
	if c.BitRate > 0 {
		return c.BitRate
	}
	if sampleRate == 0 {
		sampleRate = c.SampleRate
	}
	if channels == 0 {
		channels = c.Channels
	}
	return sampleRate * 16 * channels // 16-bit LPCM
}

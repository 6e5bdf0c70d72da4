package audio

import (
	"errors"
	"fmt"

	"github.com/zaf/g711"
)

// Encoding identifies the wire format of an inbound audio chunk.
type Encoding string

const (
	EncodingPCM16 Encoding = "linear16" // 16-bit little-endian PCM
	EncodingULaw  Encoding = "mulaw"    // ITU-T G.711 µ-law, telephony
	EncodingALaw  Encoding = "alaw"     // ITU-T G.711 A-law, telephony
)

// PCMToULaw converts a 16-bit PCM sample to 8-bit µ-law using ITU-T G.711 standard
func PCMToULaw(sample int16) byte {
	return g711.EncodeUlawFrame(sample)
}

// ULawToPCM converts an 8-bit µ-law byte to 16-bit PCM using ITU-T G.711 standard
func ULawToPCM(u byte) int16 {
	return g711.DecodeUlawFrame(u)
}

// PCMBytesToULaw converts PCM bytes to µ-law
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULawBytesToPCM converts µ-law bytes to PCM bytes
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// PCMBytesToALaw converts PCM bytes to A-law
func PCMBytesToALaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeAlaw(pcm), nil
}

// ALawBytesToPCM converts A-law bytes to PCM bytes
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// ToPCM16 converts a chunk in the given encoding to 16-bit little-endian
// PCM, the format the STT services consume.
func ToPCM16(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingPCM16, "":
		return data, nil
	case EncodingULaw:
		return ULawBytesToPCM(data), nil
	case EncodingALaw:
		return ALawBytesToPCM(data), nil
	default:
		return nil, fmt.Errorf("audio: unsupported encoding %q", enc)
	}
}

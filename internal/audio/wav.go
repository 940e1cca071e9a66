// Package audio canonicalizes recording audio before transcription.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
)

// wavHeader is the canonical 44-byte PCM WAV header.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16 // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// Normalizer rewrites recordings into canonical mono PCM-16 WAV.
//
// Normalization is fail-open: when the input cannot be parsed or converted
// the original bytes come back untouched, because the transcription engine
// accepts most container formats on its own and a conversion failure must
// never cost us the transcript.
type Normalizer struct {
	log *slog.Logger
}

func NewNormalizer(log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{log: log}
}

// Normalize returns the canonical WAV rendition of data, or data itself when
// conversion is not possible.
func (n *Normalizer) Normalize(data []byte) []byte {
	out, err := canonicalize(data)
	if err != nil {
		n.log.Warn("audio normalization skipped", "err", err)
		return data
	}
	return out
}

func canonicalize(data []byte) ([]byte, error) {
	hdr, pcm, err := decodeWAV(data)
	if err != nil {
		return nil, err
	}

	samples, err := toMonoPCM16(hdr, pcm)
	if err != nil {
		return nil, err
	}
	return encodeWAV(samples, int(hdr.SampleRate))
}

// decodeWAV parses a PCM WAV file, walking chunks so files with extra
// metadata chunks (LIST, fact) still parse.
func decodeWAV(data []byte) (wavHeader, []byte, error) {
	var hdr wavHeader
	if len(data) < 44 {
		return hdr, nil, fmt.Errorf("wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return hdr, nil, fmt.Errorf("not a RIFF/WAVE container")
	}

	var fmtSeen bool
	var pcm []byte
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return hdr, nil, fmt.Errorf("truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return hdr, nil, fmt.Errorf("fmt chunk too small: %d", size)
			}
			hdr.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			hdr.NumChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			hdr.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			hdr.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			fmtSeen = true
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if !fmtSeen {
		return hdr, nil, fmt.Errorf("missing fmt chunk")
	}
	if pcm == nil {
		return hdr, nil, fmt.Errorf("missing data chunk")
	}
	if hdr.AudioFormat != 1 {
		return hdr, nil, fmt.Errorf("unsupported audio format %d", hdr.AudioFormat)
	}
	if hdr.BitsPerSample != 16 {
		return hdr, nil, fmt.Errorf("unsupported bit depth %d", hdr.BitsPerSample)
	}
	if hdr.NumChannels == 0 || hdr.SampleRate == 0 {
		return hdr, nil, fmt.Errorf("invalid fmt chunk")
	}
	return hdr, pcm, nil
}

// toMonoPCM16 downmixes interleaved PCM-16 to mono by averaging channels.
func toMonoPCM16(hdr wavHeader, pcm []byte) ([]int16, error) {
	ch := int(hdr.NumChannels)
	frameBytes := ch * 2
	if len(pcm)%frameBytes != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%frameBytes]
	}
	frames := len(pcm) / frameBytes
	if frames == 0 {
		return nil, fmt.Errorf("no audio frames")
	}

	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		base := i * frameBytes
		for c := 0; c < ch; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[base+c*2 : base+c*2+2])))
		}
		out[i] = int16(sum / ch)
	}
	return out, nil
}

func encodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	hdr := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

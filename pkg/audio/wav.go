package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// riffHeaderLen is the fixed RIFF chunk descriptor length.
	riffHeaderLen = 12

	// wavHeaderLen is the total header length of the canonical 44-byte
	// 16-bit PCM WAV layout produced by EncodeWAV.
	wavHeaderLen = 44
)

// DecodeWAV parses a RIFF/WAVE byte slice into a mono [Clip]. Multi-channel
// audio is down-mixed by averaging. Only 16-bit integer PCM is supported,
// the format every UTAU recorder produces.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < riffHeaderLen {
		return Clip{}, errors.New("audio: data too short to be a valid RIFF file")
	}
	if string(data[0:4]) != "RIFF" {
		return Clip{}, errors.New("audio: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return Clip{}, errors.New("audio: missing WAVE identifier")
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		foundFmt      bool
	)

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := riffHeaderLen
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(data) {
				fmtData := data[offset+8:]
				channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return Clip{}, errors.New("audio: data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return Clip{}, fmt.Errorf("audio: unsupported bit depth %d (only 16-bit PCM)", bitsPerSample)
			}
			end := offset + 8 + chunkSize
			if end > len(data) {
				end = len(data)
			}
			return Clip{
				Samples:    FromPCM16(data[offset+8:end], channels),
				SampleRate: sampleRate,
			}, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Clip{}, errors.New("audio: missing data chunk")
}

// EncodeWAV renders a clip as a canonical 44-byte-header, 16-bit mono
// RIFF/WAVE file.
func EncodeWAV(c Clip) []byte {
	pcm := ToPCM16(c.Samples)
	out := make([]byte, wavHeaderLen+len(pcm))

	// RIFF chunk descriptor.
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	// fmt sub-chunk: PCM, mono, 16-bit.
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], 1)
	binary.LittleEndian.PutUint32(out[24:28], uint32(c.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(c.SampleRate*2))
	binary.LittleEndian.PutUint16(out[32:34], 2)
	binary.LittleEndian.PutUint16(out[34:36], 16)

	// data sub-chunk.
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)

	return out
}

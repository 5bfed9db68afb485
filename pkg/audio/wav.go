package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the fixed size of the RIFF/WAVE header produced by
// [EncodeWAV]: RIFF chunk descriptor, PCM fmt sub-chunk, and the data
// sub-chunk preamble.
const wavHeaderSize = 44

const bitsPerSample = 16

// EncodeWAV converts mono float samples to signed 16-bit PCM and wraps them
// in a minimal single-channel RIFF/WAVE container (PCM format tag 1,
// little-endian, 44-byte header).
//
// Samples are clamped to [-1, 1] before scaling; negative values scale by
// 32768 and non-negative values by 32767 so that both ends of the int16
// range are reachable without overflow. The encoding is a pure transform:
// the same input always produces byte-identical output.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	byteRate := sampleRate * bitsPerSample / 8

	buf := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)                  // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                  // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(floatToPCM16(s)))
	}
	return buf
}

// floatToPCM16 converts one float sample to int16 with a symmetric clamp.
func floatToPCM16(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// DecodeWAV parses a mono 16-bit PCM RIFF/WAVE container produced by
// [EncodeWAV] (or any standard encoder of the same format) back into float
// samples and the container's sample rate.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("audio: wav data too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a RIFF/WAVE container")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return nil, 0, fmt.Errorf("audio: unexpected wav chunk layout")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, fmt.Errorf("audio: unsupported wav format tag %d (want PCM)", format)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		return nil, 0, fmt.Errorf("audio: unsupported channel count %d (want mono)", ch)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != bitsPerSample {
		return nil, 0, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bits)
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataSize > len(data)-wavHeaderSize {
		dataSize = len(data) - wavHeaderSize
	}

	samples := make([]float32, dataSize/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[wavHeaderSize+i*2:]))
		if s < 0 {
			samples[i] = float32(s) / 32768
		} else {
			samples[i] = float32(s) / 32767
		}
	}
	return samples, sampleRate, nil
}

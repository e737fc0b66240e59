// Package recorder implements the WAV recording sink: header writing,
// header back-patching, filename/rotation policy, and the optional
// kiwi-wav GPS-chunk framing. Ported from _write_wav_header,
// _update_wav_header, and _write_samples in kiwirecorder.py, in the style
// of WAVHeader/writeWAVHeader in clients/iq-recorder/main.go.
package recorder

import (
	"encoding/binary"
	"io"
)

const (
	headerSize  = 44
	bitsPerSamp = 16
)

// writeWAVHeader writes a 44-byte RIFF/WAVE/fmt header at the current
// writer position. When isKiwiWAV, the trailing "data" subchunk header is
// omitted — the kiwi-wav scheme writes a "data" chunk before each append
// instead of one static one.
func writeWAVHeader(w io.Writer, fileSize int64, sampleRate int, channels int, isKiwiWAV bool) error {
	byteRate := uint32(sampleRate * channels * bitsPerSamp / 8)
	blockAlign := uint16(channels * bitsPerSamp / 8)

	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := writeU32(w, uint32(fileSize-8)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := writeU32(w, 16); err != nil {
		return err
	}
	if err := writeU16(w, 1); err != nil { // PCM
		return err
	}
	if err := writeU16(w, uint16(channels)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(sampleRate)); err != nil {
		return err
	}
	if err := writeU32(w, byteRate); err != nil {
		return err
	}
	if err := writeU16(w, blockAlign); err != nil {
		return err
	}
	if err := writeU16(w, bitsPerSamp); err != nil {
		return err
	}
	if isKiwiWAV {
		return nil
	}
	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	dataSize := fileSize - headerSize
	if dataSize < 0 {
		dataSize = 0
	}
	return writeU32(w, uint32(dataSize))
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// writeKiwiChunkHeader writes the "kiwi",10,<gps...> chunk that precedes
// each data chunk in kiwi-wav mode, per spec §4.8/§6.
func writeKiwiChunkHeader(w io.Writer, lastSolution uint8, gpsSec, gpsNsec uint32) error {
	if _, err := w.Write([]byte("kiwi")); err != nil {
		return err
	}
	if err := writeU32(w, 10); err != nil {
		return err
	}
	if _, err := w.Write([]byte{lastSolution, 0}); err != nil {
		return err
	}
	if err := writeU32(w, gpsSec); err != nil {
		return err
	}
	return writeU32(w, gpsNsec)
}

// writeDataChunkHeader writes a "data",<N> chunk header for one kiwi-wav
// append.
func writeDataChunkHeader(w io.Writer, n uint32) error {
	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	return writeU32(w, n)
}

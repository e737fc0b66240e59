// Package adpcm implements the Intel/IMA 4-bit ADPCM decoder used on the
// KiwiSDR wire protocol, ported from the encoder half of this corpus
// (kiwi_adpcm.go) and the reference decoder in kiwiclient.py.
package adpcm

// stepSizeTable is the 89-entry IMA step table, bit-exact with
// kiwi_adpcm.go's stepSizeTable.
var stepSizeTable = [89]int{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17, 19, 21, 23, 25, 28, 31, 34,
	37, 41, 45, 50, 55, 60, 66, 73, 80, 88, 97, 107, 118, 130, 143,
	157, 173, 190, 209, 230, 253, 279, 307, 337, 371, 408, 449, 494,
	544, 598, 658, 724, 796, 876, 963, 1060, 1166, 1282, 1411, 1552,
	1707, 1878, 2066, 2272, 2499, 2749, 3024, 3327, 3660, 4026,
	4428, 4871, 5358, 5894, 6484, 7132, 7845, 8630, 9493, 10442,
	11487, 12635, 13899, 15289, 16818, 18500, 20350, 22385, 24623,
	27086, 29794, 32767,
}

var indexAdjustTable = [16]int{
	-1, -1, -1, -1, // +0 - +3, decrease the step size
	2, 4, 6, 8, // +4 - +7, increase the step size
	-1, -1, -1, -1, // -0 - -3, decrease the step size
	2, 4, 6, 8, // -4 - -7, increase the step size
}

func clamp(x, xmin, xmax int) int {
	if x < xmin {
		return xmin
	}
	if x > xmax {
		return xmax
	}
	return x
}

// Decoder is the IMA-ADPCM decompressor's state machine: index and
// predictor, both starting at zero.
type Decoder struct {
	index     int
	predictor int
}

// New returns a Decoder with (index=0, predictor=0).
func New() *Decoder {
	return &Decoder{}
}

// Reset restores (index=0, predictor=0), used before each waterfall body
// since waterfall compression is not persistent across frames the way
// audio compression is.
func (d *Decoder) Reset() {
	d.index = 0
	d.predictor = 0
}

func (d *Decoder) decodeCode(code int) int16 {
	step := stepSizeTable[d.index]
	d.index = clamp(d.index+indexAdjustTable[code], 0, len(stepSizeTable)-1)

	diff := step >> 3
	if code&1 != 0 {
		diff += step >> 2
	}
	if code&2 != 0 {
		diff += step >> 1
	}
	if code&4 != 0 {
		diff += step
	}
	if code&8 != 0 {
		diff = -diff
	}

	d.predictor = clamp(d.predictor+diff, -32768, 32767)
	return int16(d.predictor)
}

// Decode expands a byte slice of packed 4-bit codes into 2*len(data) i16
// samples. The low nibble of each byte is decoded before the high nibble.
func (d *Decoder) Decode(data []byte) []int16 {
	samples := make([]int16, 0, 2*len(data))
	for _, b := range data {
		samples = append(samples, d.decodeCode(int(b&0x0F)))
		samples = append(samples, d.decodeCode(int(b>>4)))
	}
	return samples
}

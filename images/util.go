package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum generates a deterministic checksum for a Mat to verify
// that processing left it untouched.
//
// Arguments:
// - mat: The Mat to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string.
//
// Example:
//
// ```go
//
//	before := ComputeMatChecksum(frame)
//	_, _ = detector.DetectMotion(&frame)
//	unchanged := before == ComputeMatChecksum(frame)
//
// ```
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	data, _ := mat.DataPtrUint8()
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}

// IsBinaryMask reports whether mask is a single channel 8-bit image whose
// pixels are all either 0 or MaskValue.
func IsBinaryMask(mask gocv.Mat) bool {
	if mask.Empty() || mask.Channels() != 1 || mask.Type() != gocv.MatTypeCV8UC1 {
		return false
	}
	data, err := mask.DataPtrUint8()
	if err != nil {
		return false
	}
	for _, v := range data {
		if v != 0 && v != MaskValue {
			return false
		}
	}
	return true
}

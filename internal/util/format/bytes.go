// Package format renders sizes of preview artifacts and archives.
package format

import "strconv"

var units = []string{"KB", "MB", "GB", "TB", "PB", "EB"}

// HumanizeBytes converts a byte count into a human-readable string (e.g., "1.5 MB").
// Negative counts mean the size is unknown.
func HumanizeBytes(b int64) string {
	const unit = 1024
	if b < 0 {
		return "unknown size"
	}
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit && exp < len(units)-1; n /= unit {
		div *= unit
		exp++
	}
	var buf [24]byte
	s := strconv.AppendFloat(buf[:0], float64(b)/float64(div), 'f', 1, 64)
	return string(s) + " " + units[exp]
}

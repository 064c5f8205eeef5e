// Package units provides binary size unit multipliers (1024-based).
package units

// Binary size multipliers.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// InMiB converts a byte count to mebibytes.
func InMiB(bytes uint64) float64 {
	return float64(bytes) / MiB
}

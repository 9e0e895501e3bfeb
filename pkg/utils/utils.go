package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Our size constants. Powers of two!
const (
	_   = iota
	KiB = 1 << (10 * iota)
	MiB
	GiB
	TiB
	PiB
	EiB
)

// Decimal multiples, used when a suffix has no "i" (e.g. "1.5G").
const (
	KB uint64 = 1000
	MB        = KB * 1000
	GB        = MB * 1000
	TB        = GB * 1000
	PB        = TB * 1000
	EB        = PB * 1000
)

var sizeSuffixMultipliers = map[string]uint64{
	"":    1,
	"b":   1,
	"k":   KB,
	"kb":  KB,
	"ki":  KiB,
	"kib": KiB,
	"m":   MB,
	"mb":  MB,
	"mi":  MiB,
	"mib": MiB,
	"g":   GB,
	"gb":  GB,
	"gi":  GiB,
	"gib": GiB,
	"t":   TB,
	"tb":  TB,
	"ti":  TiB,
	"tib": TiB,
	"p":   PB,
	"pb":  PB,
	"pi":  PiB,
	"pib": PiB,
	"e":   EB,
	"eb":  EB,
	"ei":  EiB,
	"eib": EiB,
}

// ParseSize converts human-readable size strings (e.g. "10M", "4GiB", "1.5T") to bytes.
// Suffixes with an "i" are binary multiples, the rest are decimal.
func ParseSize(input string) (uint64, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer(" ", "", "_", "", ",", "").Replace(normalized)
	if normalized == "" {
		return 0, fmt.Errorf("size string is empty")
	}
	if strings.HasPrefix(normalized, "-") {
		return 0, fmt.Errorf("size must be non-negative: %s", input)
	}
	normalized = strings.TrimPrefix(normalized, "+")

	// Plain numbers, including exponent forms like "1e3".
	if f, err := strconv.ParseFloat(normalized, 64); err == nil {
		return toBytes(input, f, 1)
	}

	idx := strings.IndexFunc(normalized, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if idx <= 0 {
		return 0, fmt.Errorf("invalid size %q", input)
	}

	value, err := strconv.ParseFloat(normalized[:idx], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", input, err)
	}

	suffix := strings.TrimSuffix(strings.TrimSuffix(normalized[idx:], "bytes"), "byte")
	multiplier, ok := sizeSuffixMultipliers[suffix]
	if !ok {
		return 0, fmt.Errorf("unknown size suffix %q", normalized[idx:])
	}

	return toBytes(input, value, multiplier)
}

func toBytes(input string, value float64, multiplier uint64) (uint64, error) {
	product := value * float64(multiplier)
	if math.IsInf(product, 0) || math.IsNaN(product) {
		return 0, fmt.Errorf("size %s is not a finite number", input)
	}
	if product < 0 || product > float64(math.MaxUint64) {
		return 0, fmt.Errorf("size %s overflows uint64", input)
	}
	return uint64(product), nil
}

// DisplaySize takes a number of bytes and returns a human-readable string
func DisplaySize(bytes uint64) string {

	switch {
	case bytes < KiB:
		return fmt.Sprintf("%d B", bytes)
	case bytes < MiB:
		return fmt.Sprintf("%.2f KiB", float64(bytes)/float64(KiB))
	case bytes < GiB:
		return fmt.Sprintf("%.2f MiB", float64(bytes)/float64(MiB))
	case bytes < TiB:
		return fmt.Sprintf("%.2f GiB", float64(bytes)/float64(GiB))
	case bytes < PiB:
		return fmt.Sprintf("%.2f TiB", float64(bytes)/float64(TiB))
	case bytes < EiB:
		return fmt.Sprintf("%.2f PiB", float64(bytes)/float64(PiB))
	default:
		return fmt.Sprintf("%.2f EiB", float64(bytes)/float64(EiB))
	}
}

// PadSeq renders a 1-based sequence number zero-padded to width digits.
// Numbers wider than width are printed in full.
func PadSeq(seq, width int) string {
	return fmt.Sprintf("%0*d", width, seq)
}

// Digits returns how many decimal digits n needs.
func Digits(n int) int {
	if n <= 0 {
		return 1
	}
	return len(strconv.Itoa(n))
}

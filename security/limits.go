package security

// Limits bounds parsing and decoding work so hostile documents cannot
// exhaust the process.
type Limits struct {
	// Maximum decompressed stream size. Guards against decompression bombs.
	MaxDecompressedSize int64

	// Maximum indirect reference resolution depth.
	MaxIndirectDepth int

	// Maximum cross-reference chain length (Prev entries).
	MaxXRefSections int

	// Maximum page tree depth.
	MaxPageTreeDepth int

	// Maximum string length in bytes.
	MaxStringLength int64

	// Maximum number of objects loaded from a single document.
	MaxObjects int
}

// DefaultLimits returns safe defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024,
		MaxIndirectDepth:    100,
		MaxXRefSections:     50,
		MaxPageTreeDepth:    64,
		MaxStringLength:     10 * 1024 * 1024,
		MaxObjects:          1 << 20,
	}
}

// Merged fills zero fields of l from the defaults.
func (l Limits) Merged() Limits {
	d := DefaultLimits()
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	if l.MaxIndirectDepth <= 0 {
		l.MaxIndirectDepth = d.MaxIndirectDepth
	}
	if l.MaxXRefSections <= 0 {
		l.MaxXRefSections = d.MaxXRefSections
	}
	if l.MaxPageTreeDepth <= 0 {
		l.MaxPageTreeDepth = d.MaxPageTreeDepth
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxObjects <= 0 {
		l.MaxObjects = d.MaxObjects
	}
	return l
}

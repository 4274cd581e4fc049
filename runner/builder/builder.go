package builder

import (
	"fmt"
	"sort"
	"strings"
)

// DataType represents the width of numerical data on the device
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// ParseDataType accepts the lower case names printed by String.
func ParseDataType(s string) (DataType, error) {
	for _, dt := range []DataType{Float32, Float64, INT32, INT64} {
		if strings.EqualFold(s, dt.String()) {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// SizeOfType returns the size in bytes of a data type
func SizeOfType(dt DataType) int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// AlignmentType specifies memory alignment requirements
type AlignmentType int

const (
	NoAlignment    AlignmentType = 1
	CacheLineAlign AlignmentType = 64
	WarpAlign      AlignmentType = 128
	PageAlign      AlignmentType = 4096
)

// ArraySpec describes one region of device memory
type ArraySpec struct {
	Name      string
	Size      int64 // number of values
	Alignment AlignmentType
	DataType  DataType
}

// Bytes is the unpadded size of the region
func (s ArraySpec) Bytes() int64 { return s.Size * SizeOfType(s.DataType) }

// AlignedSize rounds n bytes up to a multiple of the alignment
func AlignedSize(n int64, align AlignmentType) int64 {
	a := int64(align)
	if a <= 1 {
		return n
	}
	return ((n + a - 1) / a) * a
}

// Builder carries the device type configuration and generates the kernel
// preamble shared by every kernel built against it
type Builder struct {
	FloatType DataType
	IntType   DataType

	// Integer constants emitted as #defines, e.g. block sizes
	Constants map[string]int

	KernelPreamble string
}

// Config holds configuration for creating a Builder
type Config struct {
	FloatType DataType
	IntType   DataType
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}
	if floatType != Float32 && floatType != Float64 {
		panic(fmt.Sprintf("float type must be Float32 or Float64, got %v", floatType))
	}
	if intType != INT32 && intType != INT64 {
		panic(fmt.Sprintf("int type must be INT32 or INT64, got %v", intType))
	}
	return &Builder{
		FloatType: floatType,
		IntType:   intType,
		Constants: make(map[string]int),
	}
}

// GetIntSize returns the size of the integer type in bytes
func (kb *Builder) GetIntSize() int { return int(SizeOfType(kb.IntType)) }

// GetFloatSize returns the size of the real type in bytes
func (kb *Builder) GetFloatSize() int { return int(SizeOfType(kb.FloatType)) }

// AddConstant registers a #define for the preamble
func (kb *Builder) AddConstant(name string, value int) { kb.Constants[name] = value }

// GeneratePreamble generates the kernel preamble
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	floatTypeStr, floatSuffix := "double", ""
	if kb.FloatType == Float32 {
		floatTypeStr, floatSuffix = "float", "f"
	}
	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}
	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", floatTypeStr))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", intTypeStr))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString(fmt.Sprintf("#define REAL_ONE 1.0%s\n", floatSuffix))
	sb.WriteString("\n")

	names := make([]string, 0, len(kb.Constants))
	for name := range kb.Constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("#define %s %d\n", name, kb.Constants[name]))
	}
	if len(names) > 0 {
		sb.WriteString("\n")
	}

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// CarveRegions lays the specs out back to back, each starting on its own
// alignment boundary. It returns the byte offset of each region and the
// total bytes needed.
func CarveRegions(specs []ArraySpec) (offsets []int64, total int64) {
	offsets = make([]int64, len(specs))
	for i, s := range specs {
		align := s.Alignment
		if align == 0 {
			align = NoAlignment
		}
		total = AlignedSize(total, align)
		// offsets must divide evenly into values of the region's type
		if sz := SizeOfType(s.DataType); total%sz != 0 {
			total = AlignedSize(total, AlignmentType(sz))
		}
		offsets[i] = total
		total += s.Bytes()
	}
	return offsets, total
}

package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"github.com/sanonone/grl/pkg/core/types"
)

const (
	// BufferMagic tags file-backed buffers ("GRLB").
	BufferMagic   = 0x424C5247
	BufferVersion = 1
	// HeaderSize precedes the payload of every mapping; it keeps the payload
	// 64-byte aligned.
	HeaderSize = 64
	// MaxRank is the largest shape rank the header can describe.
	MaxRank = 6
)

// DType is the element type of a buffer.
type DType uint8

const (
	Float32 DType = iota
	Uint32
	Uint64
	Uint8
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case Float32, Uint32:
		return 4
	case Uint64:
		return 8
	case Uint8:
		return 1
	}
	return 0
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Uint8:
		return "uint8"
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Buffer is a named, fixed-shape numeric array living in shared memory.
// Element writes are not synchronised; concurrent writers to the same
// element race and the last write wins.
type Buffer struct {
	name    string
	shape   []int
	dtype   DType
	mapping []byte
	data    []byte
	file    *os.File
}

// Name returns the buffer's name in the store namespace.
func (b *Buffer) Name() string { return b.name }

// Shape returns a copy of the buffer shape.
func (b *Buffer) Shape() []int { return append([]int(nil), b.shape...) }

// DType returns the element type.
func (b *Buffer) DType() DType { return b.dtype }

// Len returns the number of elements.
func (b *Buffer) Len() int { return numElements(b.shape) }

// Bytes returns the raw payload.
func (b *Buffer) Bytes() []byte { return b.data }

// Float32 returns a zero-copy float32 view. It panics on other dtypes.
func (b *Buffer) Float32() []float32 {
	b.mustBe(Float32)
	if b.Len() == 0 {
		return []float32{}
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), b.Len())
}

// Uint32 returns a zero-copy uint32 view. It panics on other dtypes.
func (b *Buffer) Uint32() []uint32 {
	b.mustBe(Uint32)
	if b.Len() == 0 {
		return []uint32{}
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b.data[0])), b.Len())
}

// Uint64 returns a zero-copy uint64 view. It panics on other dtypes.
func (b *Buffer) Uint64() []uint64 {
	b.mustBe(Uint64)
	if b.Len() == 0 {
		return []uint64{}
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b.data[0])), b.Len())
}

// Uint8 returns the payload as bytes. It panics on other dtypes.
func (b *Buffer) Uint8() []uint8 {
	b.mustBe(Uint8)
	return b.data[:b.Len()]
}

// Matrix views a float32 buffer as rows x cols, where rows is the first
// dimension. A 1-d buffer of length d is viewed as d x 1.
func (b *Buffer) Matrix() types.Matrix {
	rows, cols := b.shape[0], 1
	for _, s := range b.shape[1:] {
		cols *= s
	}
	return types.Matrix{Rows: rows, Cols: cols, Data: b.Float32()}
}

func (b *Buffer) mustBe(d DType) {
	if b.dtype != d {
		panic(fmt.Sprintf("shm: buffer %q is %s, not %s", b.name, b.dtype, d))
	}
}

func (b *Buffer) release() error {
	if b.file == nil {
		return munmapAnon(b.mapping)
	}
	var firstErr error
	if err := munmap(b.mapping); err != nil {
		firstErr = err
	}
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func numElements(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func writeHeader(hdr []byte, dtype DType, shape []int) {
	binary.LittleEndian.PutUint32(hdr[0:4], BufferMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], BufferVersion)
	hdr[8] = byte(dtype)
	hdr[9] = byte(len(shape))
	for i, s := range shape {
		binary.LittleEndian.PutUint64(hdr[16+8*i:], uint64(s))
	}
}

func readHeader(hdr []byte) (DType, []int, error) {
	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != BufferMagic {
		return 0, nil, fmt.Errorf("%w: magic mismatch", ErrCorrupt)
	}
	if version := binary.LittleEndian.Uint32(hdr[4:8]); version != BufferVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	dtype := DType(hdr[8])
	rank := int(hdr[9])
	if dtype.Size() == 0 || rank == 0 || rank > MaxRank {
		return 0, nil, fmt.Errorf("%w: dtype %d rank %d", ErrCorrupt, dtype, rank)
	}
	shape := make([]int, rank)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint64(hdr[16+8*i:]))
	}
	return dtype, shape, nil
}

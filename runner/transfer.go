package runner

import (
	"unsafe"

	"github.com/notargets/gocca"
	"github.com/notargets/hexfem/runner/builder"
)

func ptrOf[T any](s []T) unsafe.Pointer { return unsafe.Pointer(&s[0]) }

// UploadInts copies host indices into mem at offsetBytes, narrowing to
// int32 when the device index type is INT32
func (kr *Runner) UploadInts(mem *gocca.OCCAMemory, data []int64, offsetBytes int64) {
	if len(data) == 0 {
		return
	}
	if kr.IntType == builder.INT32 {
		narrow := make([]int32, len(data))
		for i, v := range data {
			narrow[i] = int32(v)
		}
		mem.CopyFromWithOffset(ptrOf(narrow), int64(len(narrow)*4), offsetBytes)
		return
	}
	mem.CopyFromWithOffset(ptrOf(data), int64(len(data)*8), offsetBytes)
}

// UploadReals copies host values into mem at offsetBytes, narrowing to
// float32 when the device real type is Float32
func (kr *Runner) UploadReals(mem *gocca.OCCAMemory, data []float64, offsetBytes int64) {
	if len(data) == 0 {
		return
	}
	if kr.FloatType == builder.Float32 {
		narrow := make([]float32, len(data))
		for i, v := range data {
			narrow[i] = float32(v)
		}
		mem.CopyFromWithOffset(ptrOf(narrow), int64(len(narrow)*4), offsetBytes)
		return
	}
	mem.CopyFromWithOffset(ptrOf(data), int64(len(data)*8), offsetBytes)
}

// DownloadInts reads n indices from mem at offsetBytes
func (kr *Runner) DownloadInts(mem *gocca.OCCAMemory, n int, offsetBytes int64) []int64 {
	out := make([]int64, n)
	if n == 0 {
		return out
	}
	if kr.IntType == builder.INT32 {
		narrow := make([]int32, n)
		mem.CopyToWithOffset(ptrOf(narrow), int64(n*4), offsetBytes)
		for i, v := range narrow {
			out[i] = int64(v)
		}
		return out
	}
	mem.CopyToWithOffset(ptrOf(out), int64(n*8), offsetBytes)
	return out
}

// DownloadReals reads n values from mem at offsetBytes
func (kr *Runner) DownloadReals(mem *gocca.OCCAMemory, n int, offsetBytes int64) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if kr.FloatType == builder.Float32 {
		narrow := make([]float32, n)
		mem.CopyToWithOffset(ptrOf(narrow), int64(n*4), offsetBytes)
		for i, v := range narrow {
			out[i] = float64(v)
		}
		return out
	}
	mem.CopyToWithOffset(ptrOf(out), int64(n*8), offsetBytes)
	return out
}

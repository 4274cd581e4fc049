package runner

import (
	"fmt"

	"github.com/notargets/gocca"
	"github.com/notargets/hexfem/runner/builder"
	"github.com/sirupsen/logrus"
)

// Runner owns a device, the kernels built on it and the named device buffers
// allocated through it
type Runner struct {
	*builder.Builder
	Device       *gocca.OCCADevice
	Kernels      map[string]*gocca.OCCAKernel
	PooledMemory map[string]*gocca.OCCAMemory
	sizes        map[string]int64
}

// NewRunner creates a new Runner instance
func NewRunner(device *gocca.OCCADevice, cfg builder.Config) *Runner {
	if device == nil {
		panic(fmt.Sprintf("runner needs a device, got nil (config %+v)", cfg))
	}
	return &Runner{
		Builder:      builder.NewBuilder(cfg),
		Device:       device,
		Kernels:      make(map[string]*gocca.OCCAKernel),
		PooledMemory: make(map[string]*gocca.OCCAMemory),
		sizes:        make(map[string]int64),
	}
}

// BuildKernel compiles and registers a kernel with the program
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	kr.GeneratePreamble()
	fullSource := kr.KernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error
	if kr.Device.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	if old, ok := kr.Kernels[kernelName]; ok {
		old.Free()
	}
	kr.Kernels[kernelName] = kernel
	logrus.Debugf("built kernel %s on %s", kernelName, kr.Device.Mode())
	return kernel, nil
}

// RunKernel runs a built kernel and waits for the device
func (kr *Runner) RunKernel(kernelName string, args ...interface{}) error {
	kernel, ok := kr.Kernels[kernelName]
	if !ok {
		return fmt.Errorf("kernel %s not built", kernelName)
	}
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel %s execution failed: %w", kernelName, err)
	}
	kr.Device.Finish()
	return nil
}

// Int converts an index to the Go type matching int_t for scalar kernel
// arguments
func (kr *Runner) Int(v int64) interface{} {
	if kr.IntType == builder.INT32 {
		return int32(v)
	}
	return v
}

// Malloc allocates a named, zeroed buffer, replacing any buffer of that name
func (kr *Runner) Malloc(name string, bytes int64) *gocca.OCCAMemory {
	kr.Release(name)
	if bytes < 8 {
		// OCCA rejects empty allocations
		bytes = 8
	}
	zero := make([]byte, bytes)
	mem := kr.Device.Malloc(bytes, ptrOf(zero), nil)
	kr.PooledMemory[name] = mem
	kr.sizes[name] = bytes
	return mem
}

// Memory returns a named buffer, nil if absent
func (kr *Runner) Memory(name string) *gocca.OCCAMemory { return kr.PooledMemory[name] }

// Bytes returns the allocated size of a named buffer
func (kr *Runner) Bytes(name string) int64 { return kr.sizes[name] }

// Release frees a named buffer if it exists
func (kr *Runner) Release(name string) {
	if mem, ok := kr.PooledMemory[name]; ok {
		mem.Free()
		delete(kr.PooledMemory, name)
		delete(kr.sizes, name)
	}
}

// TotalBytes is the device memory held by the runner's named buffers
func (kr *Runner) TotalBytes() (total int64) {
	for _, b := range kr.sizes {
		total += b
	}
	return
}

// Free releases all resources
func (kr *Runner) Free() {
	for _, kernel := range kr.Kernels {
		kernel.Free()
	}
	for _, mem := range kr.PooledMemory {
		mem.Free()
	}
	kr.Kernels = make(map[string]*gocca.OCCAKernel)
	kr.PooledMemory = make(map[string]*gocca.OCCAMemory)
	kr.sizes = make(map[string]int64)
}

package utils

import (
	"fmt"

	"github.com/notargets/gocca"
	"github.com/sirupsen/logrus"
)

// Backends tried, in order, when no device properties are given
var DefaultBackends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// CreateDevice opens the device described by props, or the first backend
// in DefaultBackends that can be created when props is empty
func CreateDevice(props string) (*gocca.OCCADevice, error) {
	backends := DefaultBackends
	if props != "" {
		backends = []string{props}
	}
	var lastErr error
	for _, p := range backends {
		device, err := gocca.NewDevice(p)
		if err == nil {
			logrus.Infof("Created %s Device", device.Mode())
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no OCCA device could be created: %w", lastErr)
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	device, err := CreateDevice("")
	if err != nil {
		panic(err)
	}
	return device
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/mitchellh/go-homedir"
	"github.com/notargets/hexfem/element"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/partitions"
	"github.com/notargets/hexfem/runner/builder"
)

// Run holds the parameters of one driver run, read from YAML
type Run struct {
	Title             string  `yaml:"Title"`
	PolynomialOrder   int     `yaml:"PolynomialOrder"`
	NX                int     `yaml:"NX"`
	Scale             float64 `yaml:"Scale"`
	NumRanks          int     `yaml:"NumRanks"`
	PartitionStrategy string  `yaml:"PartitionStrategy"`
	BoundaryValue     float64 `yaml:"BoundaryValue"`
	BoundaryPart      string  `yaml:"BoundaryPart"`
	FloatType         string  `yaml:"FloatType"`
	IntType           string  `yaml:"IntType"`
	Device            string  `yaml:"Device"`
	Timing            bool    `yaml:"Timing"`
}

// Default is a two rank closure run on a 4^3 unit box
func Default() *Run {
	return &Run{
		Title:             "gradient closure",
		PolynomialOrder:   1,
		NX:                4,
		Scale:             1,
		NumRanks:          2,
		PartitionStrategy: "block",
		BoundaryValue:     -2.3,
		BoundaryPart:      "boundary",
		FloatType:         "float64",
		IntType:           "int64",
		Timing:            true,
	}
}

// Parse overlays YAML on the receiver, fields absent from data keep their
// values
func (r *Run) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, r); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}
	return nil
}

// Load reads a run file over the defaults. A leading ~ expands to the home
// directory.
func Load(path string) (*Run, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Clean(expanded))
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}
	r := Default()
	if err = r.Parse(data); err != nil {
		return nil, err
	}
	return r, r.Validate()
}

// Validate reports out of range parameters as ErrConfiguration
func (r *Run) Validate() error {
	switch {
	case r.PolynomialOrder < element.MinOrder || r.PolynomialOrder > element.MaxOrder:
		return errs.Configurationf("polynomial order %d outside [%d, %d]",
			r.PolynomialOrder, element.MinOrder, element.MaxOrder)
	case r.NX < 1:
		return errs.Configurationf("NX must be positive, got %d", r.NX)
	case r.Scale <= 0:
		return errs.Configurationf("Scale must be positive, got %g", r.Scale)
	case r.NumRanks < 1:
		return errs.Configurationf("NumRanks must be positive, got %d", r.NumRanks)
	case r.BoundaryPart == "":
		return errs.Configurationf("BoundaryPart is empty")
	}
	if _, err := r.Strategy(); err != nil {
		return err
	}
	if _, err := r.DeviceConfig(); err != nil {
		return err
	}
	return nil
}

// Strategy parses PartitionStrategy
func (r *Run) Strategy() (partitions.PartitionStrategy, error) {
	s, err := partitions.ParseStrategy(r.PartitionStrategy)
	if err != nil {
		return s, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}
	return s, nil
}

// DeviceConfig maps the type names to device widths
func (r *Run) DeviceConfig() (builder.Config, error) {
	var cfg builder.Config
	var err error
	if cfg.FloatType, err = builder.ParseDataType(r.FloatType); err != nil ||
		(cfg.FloatType != builder.Float32 && cfg.FloatType != builder.Float64) {
		return cfg, errs.Configurationf("FloatType %q must be float32 or float64", r.FloatType)
	}
	if cfg.IntType, err = builder.ParseDataType(r.IntType); err != nil ||
		(cfg.IntType != builder.INT32 && cfg.IntType != builder.INT64) {
		return cfg, errs.Configurationf("IntType %q must be int32 or int64", r.IntType)
	}
	return cfg, nil
}

// Print echoes the run parameters
func (r *Run) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", r.Title)
	fmt.Printf("[%d]\t\t\t\t= Polynomial Order\n", r.PolynomialOrder)
	fmt.Printf("[%d]^3 x %8.5f\t\t= Box\n", r.NX, r.Scale)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", r.NumRanks)
	fmt.Printf("[%s]\t\t\t= Partition Strategy\n", r.PartitionStrategy)
	fmt.Printf("%8.5f\t\t= Boundary Value on [%s]\n", r.BoundaryValue, r.BoundaryPart)
	fmt.Printf("[%s/%s]\t\t= Device Types\n", r.FloatType, r.IntType)
	if d := strings.TrimSpace(r.Device); d != "" {
		fmt.Printf("%s\t= Device\n", d)
	}
}

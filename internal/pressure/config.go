package pressure

import (
	"errors"
	"fmt"
)

// Config holds the sampling geometry and severity thresholds. Points are
// reported in a fixed CanvasWidth x CanvasHeight coordinate space regardless
// of the source image size. MaxPixels bounds the decoded raster so a small
// compressed upload cannot expand into an unbounded allocation.
type Config struct {
	SampleStride      int
	PressureThreshold float64
	ModerateThreshold float64
	HighThreshold     float64
	GridRows          int
	GridCols          int
	CanvasWidth       int
	CanvasHeight      int
	MaxPixels         int64
}

// DefaultMaxPixels allows 64 megapixels, e.g. 8192x8192.
const DefaultMaxPixels int64 = 1 << 26

func DefaultConfig() Config {
	return Config{
		SampleStride:      10,
		PressureThreshold: 0.3,
		ModerateThreshold: 0.5,
		HighThreshold:     0.8,
		GridRows:          5,
		GridCols:          3,
		CanvasWidth:       400,
		CanvasHeight:      300,
		MaxPixels:         DefaultMaxPixels,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.SampleStride <= 0 {
		errs = append(errs, fmt.Errorf("sample stride must be > 0, got %d", c.SampleStride))
	}
	if c.GridRows <= 0 || c.GridCols <= 0 {
		errs = append(errs, fmt.Errorf("grid must be at least 1x1, got %dx%d", c.GridRows, c.GridCols))
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas must be positive, got %dx%d", c.CanvasWidth, c.CanvasHeight))
	}
	if c.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("max pixels must be > 0, got %d", c.MaxPixels))
	}
	if !(c.PressureThreshold >= 0 && c.PressureThreshold < c.ModerateThreshold &&
		c.ModerateThreshold < c.HighThreshold && c.HighThreshold <= 1) {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= pressure < moderate < high <= 1, got %.2f/%.2f/%.2f",
			c.PressureThreshold, c.ModerateThreshold, c.HighThreshold))
	}
	return errors.Join(errs...)
}

package pressure

import (
	"context"
	"fmt"
)

// samplePoints min-max normalizes intensities to [0,1] and keeps every
// stride-th pixel (both axes) above the pressure threshold. A uniform image
// normalizes to all zeros.
func (a *Analyzer) samplePoints(ctx context.Context, gray *GrayImage) ([]Point, error) {
	lo, hi := uint8(255), uint8(0)
	for _, v := range gray.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := float64(hi - lo)

	w, h := gray.Width, gray.Height
	stride := a.cfg.SampleStride
	points := make([]Point, 0)
	for y := 0; y < h; y += stride {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x += stride {
			p := 0.0
			if span > 0 {
				p = float64(gray.At(x, y)-lo) / span
			}
			if p > a.cfg.PressureThreshold {
				points = append(points, Point{
					X:        int(float64(x) / float64(w) * float64(a.cfg.CanvasWidth)),
					Y:        int(float64(y) / float64(h) * float64(a.cfg.CanvasHeight)),
					Pressure: p,
				})
			}
		}
	}
	return points, nil
}

func (a *Analyzer) describe(points []Point) (Severity, string) {
	if len(points) == 0 {
		return SeverityNone, "No significant pressure points detected."
	}
	sum, peak := 0.0, 0.0
	for _, p := range points {
		sum += p.Pressure
		if p.Pressure > peak {
			peak = p.Pressure
		}
	}
	avg := sum / float64(len(points))

	severity := a.severity(peak)
	return severity, fmt.Sprintf(
		"Detected %d pressure points with %s pressure levels. Average pressure: %.2f, Maximum pressure: %.2f. Recommendation: %s",
		len(points), severity, avg, peak, recommendation(severity),
	)
}

func (a *Analyzer) severity(peak float64) Severity {
	switch {
	case peak > a.cfg.HighThreshold:
		return SeverityHigh
	case peak > a.cfg.ModerateThreshold:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

func recommendation(s Severity) string {
	switch s {
	case SeverityHigh:
		return "Consider reducing load in high-pressure areas."
	case SeverityModerate:
		return "Monitor these pressure points for potential issues."
	default:
		return "Pressure distribution appears normal."
	}
}

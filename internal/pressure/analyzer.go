package pressure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const completedMessage = "CFD analysis completed successfully with summarized pressure values."

var (
	ErrEmptyImage   = errors.New("empty image upload")
	ErrInvalidImage = errors.New("invalid image file")
)

type Severity string

const (
	SeverityNone     Severity = ""
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Point is a sampled pixel whose normalized intensity exceeded the threshold,
// expressed in canvas coordinates.
type Point struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Pressure float64 `json:"pressure"`
}

// GridSummary holds per-cell mean gray values (0-255) and the image mean.
type GridSummary struct {
	AveragePressure    float64     `json:"average_pressure"`
	PressureMapSummary [][]float64 `json:"pressure_map_summary"`
	Message            string      `json:"message"`
}

type Timings struct {
	Decode  time.Duration
	Compute time.Duration
}

// Report is the combined result for one uploaded image.
type Report struct {
	PressureData []Point     `json:"pressureData"`
	Analysis     string      `json:"analysis"`
	CFDAnalysis  GridSummary `json:"cfdAnalysis"`

	Severity Severity `json:"-"`
	Width    int      `json:"-"`
	Height   int      `json:"-"`
	Timings  Timings  `json:"-"`
}

// Analyzer is stateless; one instance may serve concurrent requests.
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pressure config: %w", err)
	}
	return &Analyzer{cfg: cfg}, nil
}

func (a *Analyzer) Config() Config { return a.cfg }

// Analyze decodes an encoded image and computes the sampled pressure points
// and the grid summary.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader) (Report, error) {
	started := time.Now()
	data, err := io.ReadAll(r)
	if err != nil {
		return Report{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return Report{}, ErrEmptyImage
	}

	if err := a.checkDimensions(data); err != nil {
		return Report{}, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	gray := Grayscale(img)
	decoded := time.Now()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report, err := a.AnalyzeGray(ctx, gray)
	if err != nil {
		return Report{}, err
	}
	report.Timings = Timings{
		Decode:  decoded.Sub(started),
		Compute: time.Since(decoded),
	}
	return report, nil
}

// checkDimensions reads only the image header and rejects rasters larger
// than MaxPixels before any pixel data is decoded.
func (a *Analyzer) checkDimensions(data []byte) error {
	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return fmt.Errorf("%w: empty raster %dx%d", ErrInvalidImage, hdr.Width, hdr.Height)
	}
	if pixels := int64(hdr.Width) * int64(hdr.Height); pixels > a.cfg.MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, hdr.Width, hdr.Height, a.cfg.MaxPixels)
	}
	return nil
}

// AnalyzeGray runs both analyses on an already converted grayscale image.
func (a *Analyzer) AnalyzeGray(ctx context.Context, gray *GrayImage) (Report, error) {
	if gray == nil || gray.Width == 0 || gray.Height == 0 {
		return Report{}, ErrInvalidImage
	}
	points, err := a.samplePoints(ctx, gray)
	if err != nil {
		return Report{}, err
	}
	severity, analysis := a.describe(points)
	return Report{
		PressureData: points,
		Analysis:     analysis,
		CFDAnalysis:  a.summarizeGrid(gray),
		Severity:     severity,
		Width:        gray.Width,
		Height:       gray.Height,
	}, nil
}

// GrayImage is an 8-bit luma raster in row-major order.
type GrayImage struct {
	Width  int
	Height int
	Pix    []uint8
}

func (g *GrayImage) At(x, y int) uint8 {
	return g.Pix[y*g.Width+x]
}

// Grayscale converts img using Y = 0.299R + 0.587G + 0.114B.
func Grayscale(img image.Image) *GrayImage {
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &GrayImage{Width: w, Height: h, Pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			out.Pix[y*w+x] = row[x*4]
		}
	}
	return out
}

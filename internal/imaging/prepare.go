// Package imaging prepares rendered page images for OCR: grayscale, deskew,
// denoise, contrast enhancement, and adaptive binarization. Every step is
// best-effort; a step that cannot improve the image passes it through.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/contractlens/extractor/internal/common"
)

// Deskew is skipped when the detected angle is within this many degrees of
// level, because resampling a near-straight page only blurs glyph edges.
const deskewMinAngle = 0.5

// Preparer runs the configured preparation steps in a fixed order.
type Preparer struct {
	cfg    common.PreprocessConfig
	logger *slog.Logger
}

// NewPreparer returns a Preparer with the given toggles.
func NewPreparer(cfg common.PreprocessConfig, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{cfg: cfg, logger: logger}
}

// Prepare applies the enabled steps to img. Grayscale conversion always runs
// first since every later step operates on intensity. Steps run independently:
// disabling one never changes what another enabled step computes.
func (p *Preparer) Prepare(img image.Image) *image.Gray {
	gray := toGray(img)
	if !p.cfg.Enabled {
		return gray
	}
	if p.cfg.Deskew {
		gray = p.deskew(gray)
	}
	if p.cfg.Denoise {
		gray = medianDenoise(gray)
	}
	if p.cfg.Enhance {
		gray = equalizeTiled(gray, 8)
	}
	if p.cfg.Binarize {
		gray = binarizeAdaptive(gray, 15, 10)
	}
	return gray
}

// PreparePNG decodes a PNG, prepares it, and re-encodes. Used by OCR adapters
// that carry pages as PNG payloads.
func (p *Preparer) PreparePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Prepare(img)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// deskew estimates the page rotation by searching for the angle whose
// horizontal projection profile has maximal variance (straight text lines
// concentrate ink into few rows) and rotates to compensate.
func (p *Preparer) deskew(gray *image.Gray) *image.Gray {
	angle := estimateSkew(gray)
	if math.Abs(angle) < deskewMinAngle {
		return gray
	}
	p.logger.Debug("imaging.deskew", "angle_deg", angle)
	return rotate(gray, -angle)
}

// estimateSkew scans -5..+5 degrees in 0.5 degree steps on a downsampled
// copy and returns the angle with the sharpest projection profile.
func estimateSkew(gray *image.Gray) float64 {
	small := downsample(gray, 800)
	best, bestScore := 0.0, -1.0
	for angle := -5.0; angle <= 5.0; angle += 0.5 {
		score := projectionVariance(small, angle)
		if score > bestScore {
			bestScore = score
			best = angle
		}
	}
	return best
}

// projectionVariance rotates row sampling by angle and measures the variance
// of per-row dark-pixel counts.
func projectionVariance(gray *image.Gray, angleDeg float64) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	tan := math.Tan(angleDeg * math.Pi / 180)
	counts := make([]float64, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yy := y + int(float64(x)*tan)
			if yy < 0 || yy >= h {
				continue
			}
			if gray.GrayAt(b.Min.X+x, b.Min.Y+yy).Y < 128 {
				counts[y]++
			}
		}
	}
	var mean float64
	for _, c := range counts {
		mean += c
	}
	mean /= float64(h)
	var variance float64
	for _, c := range counts {
		d := c - mean
		variance += d * d
	}
	return variance / float64(h)
}

func downsample(gray *image.Gray, maxDim int) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return gray
	}
	scale := float64(maxDim) / float64(max(w, h))
	dst := image.NewGray(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), gray, b, draw.Src, nil)
	return dst
}

// rotate rotates the image by angleDeg around its center, filling exposed
// corners with white.
func rotate(gray *image.Gray, angleDeg float64) *image.Gray {
	b := gray.Bounds()
	dst := image.NewGray(b)
	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)

	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	// Affine mapping destination -> source around the center.
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(dst, m, gray, b, draw.Over, nil)
	return dst
}

// medianDenoise applies a 3x3 median filter, removing salt-and-pepper noise
// while keeping glyph edges.
func medianDenoise(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	dst := image.NewGray(b)
	var window [9]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < b.Min.X || xx >= b.Max.X || yy < b.Min.Y || yy >= b.Max.Y {
						continue
					}
					window[n] = gray.GrayAt(xx, yy).Y
					n++
				}
			}
			dst.SetGray(x, y, color.Gray{Y: median(window[:n])})
		}
	}
	return dst
}

func median(vals []byte) byte {
	// Insertion sort; the window is at most 9 entries.
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1] > vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
	return vals[len(vals)/2]
}

// equalizeTiled equalizes the histogram independently per tile so faded
// regions gain contrast without blowing out clean ones. tiles is the grid
// dimension per axis.
func equalizeTiled(gray *image.Gray, tiles int) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || tiles < 1 {
		return gray
	}
	dst := image.NewGray(b)
	tw, th := (w+tiles-1)/tiles, (h+tiles-1)/tiles
	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			r := image.Rect(
				b.Min.X+tx*tw, b.Min.Y+ty*th,
				min(b.Min.X+(tx+1)*tw, b.Max.X), min(b.Min.Y+(ty+1)*th, b.Max.Y),
			)
			equalizeRegion(gray, dst, r)
		}
	}
	return dst
}

func equalizeRegion(src, dst *image.Gray, r image.Rectangle) {
	var hist [256]int
	total := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			hist[src.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return
	}
	var lut [256]byte
	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		lut[i] = byte(cum * 255 / total)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetGray(x, y, color.Gray{Y: lut[src.GrayAt(x, y).Y]})
		}
	}
}

// binarizeAdaptive thresholds each pixel against the mean of its window
// (computed via an integral image) minus a bias, which handles uneven
// lighting across a scanned page.
func binarizeAdaptive(gray *image.Gray, window, bias int) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gray
	}

	// integral[y][x] = sum of intensities in the rectangle above-left of (x, y).
	integral := make([][]int64, h+1)
	for i := range integral {
		integral[i] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	half := window / 2
	dst := image.NewGray(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-half), max(0, y-half)
			x1, y1 := min(w-1, x+half), min(h-1, y+half)
			area := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[y1+1][x1+1] - integral[y0][x1+1] - integral[y1+1][x0] + integral[y0][x0]
			mean := sum / area
			v := byte(255)
			if int64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) < mean-int64(bias) {
				v = 0
			}
			dst.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: v})
		}
	}
	return dst
}

package render

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptySource is returned by Decode for zero-length input.
var ErrEmptySource = errors.New("empty source image")

// Source is a decoded source image that can be drawn into a square of any
// edge length. Implementations must be safe for concurrent Render calls.
type Source interface {
	// Render returns a new edge × edge image. interp is used by raster
	// sources and ignored by vector ones.
	Render(edge int, interp draw.Interpolator) (image.Image, error)
	// Format names the decoded format ("png", "jpeg", "svg", ...).
	Format() string
	// Bounds is the native size of the source.
	Bounds() image.Rectangle
}

// Decode sniffs data and returns the matching Source. SVG documents are
// kept as vectors; everything else must be a registered raster format.
func Decode(data []byte) (Source, error) {
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	if isSVG(data) {
		return decodeSVG(data)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding source image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decoding source image: %s has no pixels", format)
	}
	return &rasterSource{img: img, format: format}, nil
}

// isSVG reports whether data is an XML document whose root element is
// <svg>. Declarations, comments, DOCTYPEs and whitespace before the root
// are skipped however long they are.
func isSVG(data []byte) bool {
	data = bytes.TrimLeft(data, "\xef\xbb\xbf \t\r\n")
	if !bytes.HasPrefix(data, []byte("<")) {
		return false
	}
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	for {
		tok, err := d.RawToken()
		if err != nil {
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t.Name.Local == "svg"
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return false
			}
		case xml.EndElement:
			return false
		}
	}
}

type rasterSource struct {
	img    image.Image
	format string
}

func (s *rasterSource) Format() string          { return s.format }
func (s *rasterSource) Bounds() image.Rectangle { return s.img.Bounds() }

// Render stretches the whole source onto the square; icon sources are
// expected to be square already.
func (s *rasterSource) Render(edge int, interp draw.Interpolator) (image.Image, error) {
	if edge <= 0 {
		return nil, fmt.Errorf("invalid edge %d", edge)
	}
	if interp == nil {
		interp = draw.CatmullRom
	}
	dst := image.NewNRGBA(image.Rect(0, 0, edge, edge))
	interp.Scale(dst, dst.Bounds(), s.img, s.img.Bounds(), draw.Src, nil)
	return dst, nil
}

// svgSource keeps the raw document and parses it per render: SvgIcon.SetTarget
// mutates the icon, so a shared instance could not be drawn concurrently.
type svgSource struct {
	data   []byte
	bounds image.Rectangle
}

func decodeSVG(data []byte) (Source, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding svg source: %w", err)
	}
	w, h := icon.ViewBox.W, icon.ViewBox.H
	if !(w > 0) || !(h > 0) || math.IsInf(w, 0) || math.IsInf(h, 0) {
		return nil, fmt.Errorf("decoding svg source: empty viewBox")
	}
	bounds := image.Rect(0, 0, int(math.Ceil(w)), int(math.Ceil(h)))
	return &svgSource{data: data, bounds: bounds}, nil
}

func (s *svgSource) Format() string          { return "svg" }
func (s *svgSource) Bounds() image.Rectangle { return s.bounds }

func (s *svgSource) Render(edge int, _ draw.Interpolator) (image.Image, error) {
	if edge <= 0 {
		return nil, fmt.Errorf("invalid edge %d", edge)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(s.data))
	if err != nil {
		return nil, fmt.Errorf("parsing svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(edge), float64(edge))

	dst := image.NewRGBA(image.Rect(0, 0, edge, edge))
	scanner := rasterx.NewScannerGV(edge, edge, dst, dst.Bounds())
	raster := rasterx.NewDasher(edge, edge, scanner)
	icon.Draw(raster, 1.0)
	return dst, nil
}

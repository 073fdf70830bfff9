package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
)

var DefaultColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Annotator outlines detection boxes on frames.
type Annotator struct {
	color     color.RGBA
	thickness int
}

func NewAnnotator(c color.RGBA, thickness int) *Annotator {
	if thickness <= 0 {
		thickness = 2
	}
	return &Annotator{color: c, thickness: thickness}
}

// Draw returns a copy of frame with one rectangle per detection. Boxes are
// rounded to whole pixels and drawn as given; parts outside the frame are
// simply not visible. Each stroke is centred on the box edge, with the corner
// (x+w, y+h) treated as a point on the outline.
func (a *Annotator) Draw(frame *entity.Frame, detections []entity.ObjectDetection) *entity.Frame {
	src := frame.Image
	out := image.NewRGBA(src.Bounds())
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, d := range detections {
		a.outline(out, d.Box.Rect())
	}
	return &entity.Frame{Index: frame.Index, Image: out}
}

func (a *Annotator) outline(img *image.RGBA, r image.Rectangle) {
	if r.Empty() {
		return
	}
	u := image.NewUniform(a.color)
	t := a.thickness
	lo := t / 2
	hi := t - lo
	edges := []image.Rectangle{
		image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Min.Y+hi),
		image.Rect(r.Min.X-lo, r.Max.Y-lo, r.Max.X+hi, r.Max.Y+hi),
		image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Min.X+hi, r.Max.Y+hi),
		image.Rect(r.Max.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Max.Y+hi),
	}
	for _, e := range edges {
		// draw.Draw clips to the destination bounds.
		draw.Draw(img, e, u, image.Point{}, draw.Src)
	}
}

package entity

import (
	"image"
	"math"
	"time"
)

const DefaultTargetClass = "person"

// Box is an axis-aligned bounding box in source pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoxFromCorners converts (x1,y1,x2,y2) model output into a Box.
func BoxFromCorners(x1, y1, x2, y2 float64) Box {
	return Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Rect rounds the box to integer pixel coordinates without clamping.
func (b Box) Rect() image.Rectangle {
	x0 := int(math.Round(b.X))
	y0 := int(math.Round(b.Y))
	x1 := int(math.Round(b.X + b.Width))
	y1 := int(math.Round(b.Y + b.Height))
	return image.Rect(x0, y0, x1, y1)
}

// ObjectDetection is one model output for a frame.
type ObjectDetection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detection is a persisted, accepted detection.
type Detection struct {
	ID          int64     `json:"id"`
	VideoID     int64     `json:"video_id"`
	FrameNumber int       `json:"frame_number"`
	Box         Box       `json:"box"`
	Confidence  float64   `json:"confidence"`
	Class       string    `json:"class"`
	CreatedAt   time.Time `json:"created_at"`
}

// Frame is one decoded video frame.
type Frame struct {
	Index int
	Image *image.RGBA
}

package types

// Viewport is the rectangle of the complex plane mapped onto the pixel grid.
// Column 0 maps to XMin and row 0 maps to YMin.
type Viewport struct {
	XMin  float64 `yaml:"x_min" json:"x_min"`
	YMin  float64 `yaml:"y_min" json:"y_min"`
	XSpan float64 `yaml:"x_span" json:"x_span"`
	YSpan float64 `yaml:"y_span" json:"y_span"`
}

// DefaultViewport covers [-2, 1] x [-1.5, 1.5].
func DefaultViewport() Viewport {
	return Viewport{XMin: -2.0, YMin: -1.5, XSpan: 3.0, YSpan: 3.0}
}

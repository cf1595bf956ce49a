package detection

import "VisionDetect/internal/entity"

type DetectionRequest struct {
	ImageBase64 string `json:"image_base64" validate:"required"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type RenderedBox struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Color      string   `json:"color"`
	Corners    [4]Point `json:"corners"`
}

type DetectionResponse struct {
	Project        string             `json:"project"`
	Model          string             `json:"model"`
	Width          int                `json:"width"`
	Height         int                `json:"height"`
	Predictions    []entity.Detection `json:"predictions"`
	Boxes          []RenderedBox      `json:"boxes"`
	Lines          []string           `json:"lines"`
	OriginalImage  string             `json:"original_image,omitempty"`
	AnnotatedImage string             `json:"annotated_image,omitempty"`
}

type ModelInfoResponse struct {
	Project string `json:"project"`
	Model   string `json:"model"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

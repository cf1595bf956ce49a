package customvision

import (
	"VisionDetect/internal/entity"
	"fmt"
)

type imagePrediction struct {
	ID          string       `json:"id"`
	Project     string       `json:"project"`
	Iteration   string       `json:"iteration"`
	Created     string       `json:"created"`
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	Probability float64     `json:"probability"`
	TagID       string      `json:"tagId"`
	TagName     string      `json:"tagName"`
	BoundingBox boundingBox `json:"boundingBox"`
	TagType     string      `json:"tagType,omitempty"`
}

type boundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type customVisionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p prediction) toDetection() entity.Detection {
	return entity.Detection{
		Label:      p.TagName,
		Confidence: p.Probability,
		BoundingBox: entity.BoundingBox{
			Left:   p.BoundingBox.Left,
			Top:    p.BoundingBox.Top,
			Width:  p.BoundingBox.Width,
			Height: p.BoundingBox.Height,
		},
	}
}

// ServiceError is returned for any failed prediction call: transport, status or decoding.
// StatusCode is zero when no response was received.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

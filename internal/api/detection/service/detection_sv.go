package detectionService

import (
	"VisionDetect/internal/api/detection"
	"VisionDetect/internal/entity"
	"VisionDetect/pkg/annotate"
	contextPkg "VisionDetect/pkg/context"
	"VisionDetect/pkg/log"
	"VisionDetect/pkg/utils"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/net/context"
)

type annotation struct {
	format      imaging.Format
	width       int
	height      int
	predictions []entity.Detection
	boxes       []annotate.Box
	annotated   *image.RGBA
}

func (s *detectionService) ModelInfo() detection.ModelInfoResponse {
	return detection.ModelInfoResponse{
		Project: s.predictor.ProjectID(),
		Model:   s.predictor.ModelName(),
		Message: fmt.Sprintf("Ready to predict using model **%s** in project **%s**",
			s.predictor.ModelName(), s.predictor.ProjectID()),
	}
}

func (s *detectionService) Detect(ctx context.Context, imageData []byte) (*detection.DetectionResponse, error) {
	result, err := s.annotate(ctx, imageData)
	if err != nil {
		return nil, err
	}

	encoded, err := s.utils.EncodeImage(result.annotated, result.format)
	if err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}

	boxes := make([]detection.RenderedBox, 0, len(result.boxes))
	for _, b := range result.boxes {
		rendered := detection.RenderedBox{
			Label:      b.Detection.Label,
			Confidence: b.Detection.Confidence,
			Color:      hexColor(b.Color),
		}
		for i, p := range b.Corners {
			rendered.Corners[i] = detection.Point{X: p.X, Y: p.Y}
		}
		boxes = append(boxes, rendered)
	}

	return &detection.DetectionResponse{
		Project:        s.predictor.ProjectID(),
		Model:          s.predictor.ModelName(),
		Width:          result.width,
		Height:         result.height,
		Predictions:    result.predictions,
		Boxes:          boxes,
		Lines:          annotate.Lines(result.boxes),
		OriginalImage:  s.utils.DataURI(result.format, imageData),
		AnnotatedImage: s.utils.DataURI(result.format, encoded),
	}, nil
}

func (s *detectionService) DetectAnnotated(ctx context.Context, imageData []byte) ([]byte, string, error) {
	result, err := s.annotate(ctx, imageData)
	if err != nil {
		return nil, "", err
	}

	encoded, err := s.utils.EncodeImage(result.annotated, result.format)
	if err != nil {
		return nil, "", fmt.Errorf("encode annotated image: %w", err)
	}

	return encoded, utils.MimeType(result.format), nil
}

// annotate runs ingestion, prediction and rendering in that order. A prediction failure is
// returned as is and nothing is rendered.
func (s *detectionService) annotate(ctx context.Context, imageData []byte) (*annotation, error) {
	requestID := contextPkg.GetRequestID(ctx)

	img, format, err := s.utils.DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	log.WithRequestID(ctx).WithFields(log.Fields{
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
		"bytes":  len(imageData),
	}).Debug("Image decoded, requesting predictions")

	predictions, err := s.predictor.DetectImage(ctx, imageData)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": requestID,
			"model":      s.predictor.ModelName(),
			"error":      err.Error(),
		}).Warn("Prediction failed")
		return nil, err
	}

	annotated, boxes := s.renderer.Annotate(img, predictions)

	s.log.WithFields(log.Fields{
		"request_id":  requestID,
		"predictions": len(predictions),
		"rendered":    len(boxes),
	}).Info("Image annotated")

	return &annotation{
		format:      format,
		width:       bounds.Dx(),
		height:      bounds.Dy(),
		predictions: predictions,
		boxes:       boxes,
		annotated:   annotated,
	}, nil
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

package detectionService

import (
	"VisionDetect/internal/api/detection"
	"VisionDetect/pkg/annotate"
	"VisionDetect/pkg/customvision"
	"VisionDetect/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IDetectionService interface {
	ModelInfo() detection.ModelInfoResponse
	Detect(ctx context.Context, imageData []byte) (*detection.DetectionResponse, error)
	DetectAnnotated(ctx context.Context, imageData []byte) ([]byte, string, error)
}

type detectionService struct {
	log       *logrus.Logger
	predictor customvision.IPredictor
	renderer  *annotate.Renderer
	utils     utils.IUtils
}

func NewDetectionService(
	log *logrus.Logger,
	predictor customvision.IPredictor,
	renderer *annotate.Renderer,
	utils utils.IUtils,
) IDetectionService {
	return &detectionService{
		log:       log,
		predictor: predictor,
		renderer:  renderer,
		utils:     utils,
	}
}

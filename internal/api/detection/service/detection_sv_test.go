package detectionService

import (
	"VisionDetect/internal/entity"
	"VisionDetect/pkg/annotate"
	"VisionDetect/pkg/customvision"
	"VisionDetect/pkg/log"
	"VisionDetect/pkg/utils"
	"errors"
	"image/color"
	"os"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"
	"golang.org/x/net/context"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Setenv("LOG_LEVEL", "error")
	os.Exit(m.Run())
}

type fakePredictor struct {
	detections []entity.Detection
	err        error
	calls      int
}

func (f *fakePredictor) DetectImage(_ context.Context, _ []byte) ([]entity.Detection, error) {
	f.calls++
	return f.detections, f.err
}

func (f *fakePredictor) ProjectID() string { return "proj-1" }
func (f *fakePredictor) ModelName() string { return "detect-produce" }

func encodedImage(t *testing.T, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(1000, 500, color.Black)
	data, err := utils.New().EncodeImage(img, format)
	test.That(t, err, test.ShouldBeNil)
	return data
}

func newService(p customvision.IPredictor) IDetectionService {
	return NewDetectionService(log.NewLogger(), p, annotate.New(), utils.New())
}

func appleAndBanana() []entity.Detection {
	return []entity.Detection{
		{Label: "apple", Confidence: 0.92, BoundingBox: entity.BoundingBox{Left: 0.1, Top: 0.2, Width: 0.2, Height: 0.3}},
		{Label: "banana", Confidence: 0.4, BoundingBox: entity.BoundingBox{Left: 0.5, Top: 0.5, Width: 0.1, Height: 0.1}},
		{Label: "orange", Confidence: 0.75, BoundingBox: entity.BoundingBox{Left: 0.6, Top: 0.1, Width: 0.2, Height: 0.2}},
	}
}

func TestModelInfo(t *testing.T) {
	info := newService(&fakePredictor{}).ModelInfo()
	test.That(t, info.Project, test.ShouldEqual, "proj-1")
	test.That(t, info.Model, test.ShouldEqual, "detect-produce")
	test.That(t, info.Message, test.ShouldEqual, "Ready to predict using model **detect-produce** in project **proj-1**")
}

func TestDetect(t *testing.T) {
	predictor := &fakePredictor{detections: appleAndBanana()}
	svc := newService(predictor)

	result, err := svc.Detect(context.Background(), encodedImage(t, imaging.PNG))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, predictor.calls, test.ShouldEqual, 1)

	test.That(t, result.Width, test.ShouldEqual, 1000)
	test.That(t, result.Height, test.ShouldEqual, 500)
	test.That(t, result.Predictions, test.ShouldHaveLength, 3)
	test.That(t, result.Lines, test.ShouldResemble, []string{"apple: 92.00%", "orange: 75.00%"})

	test.That(t, result.Boxes, test.ShouldHaveLength, 2)
	apple := result.Boxes[0]
	test.That(t, apple.Label, test.ShouldEqual, "apple")
	test.That(t, apple.Color, test.ShouldEqual, "#90ee90")
	test.That(t, apple.Corners[0].X, test.ShouldAlmostEqual, 100, 1e-9)
	test.That(t, apple.Corners[0].Y, test.ShouldAlmostEqual, 100, 1e-9)
	test.That(t, apple.Corners[2].X, test.ShouldAlmostEqual, 300, 1e-9)
	test.That(t, apple.Corners[2].Y, test.ShouldAlmostEqual, 250, 1e-9)
	test.That(t, result.Boxes[1].Color, test.ShouldEqual, "#ffa500")

	test.That(t, strings.HasPrefix(result.OriginalImage, "data:image/png;base64,"), test.ShouldBeTrue)
	test.That(t, strings.HasPrefix(result.AnnotatedImage, "data:image/png;base64,"), test.ShouldBeTrue)
	test.That(t, result.AnnotatedImage, test.ShouldNotEqual, result.OriginalImage)
}

func TestDetectKeepsFormat(t *testing.T) {
	svc := newService(&fakePredictor{detections: appleAndBanana()})

	result, err := svc.Detect(context.Background(), encodedImage(t, imaging.JPEG))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.HasPrefix(result.AnnotatedImage, "data:image/jpeg;base64,"), test.ShouldBeTrue)
}

func TestDetectNoDetections(t *testing.T) {
	svc := newService(&fakePredictor{})

	result, err := svc.Detect(context.Background(), encodedImage(t, imaging.PNG))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Lines, test.ShouldBeEmpty)
	test.That(t, result.Boxes, test.ShouldBeEmpty)
}

func TestDetectServiceError(t *testing.T) {
	svcErr := &customvision.ServiceError{StatusCode: 401, Code: "Unauthorized", Message: "Access denied"}
	predictor := &fakePredictor{err: svcErr}
	svc := newService(predictor)

	result, err := svc.Detect(context.Background(), encodedImage(t, imaging.PNG))
	test.That(t, result, test.ShouldBeNil)

	var got *customvision.ServiceError
	test.That(t, errors.As(err, &got), test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, svcErr)

	annotated, contentType, err := svc.DetectAnnotated(context.Background(), encodedImage(t, imaging.PNG))
	test.That(t, annotated, test.ShouldBeNil)
	test.That(t, contentType, test.ShouldBeEmpty)
	test.That(t, errors.As(err, &got), test.ShouldBeTrue)
}

func TestDetectInvalidImage(t *testing.T) {
	predictor := &fakePredictor{detections: appleAndBanana()}
	svc := newService(predictor)

	_, err := svc.Detect(context.Background(), []byte("not an image"))
	test.That(t, errors.Is(err, utils.ErrInvalidImage), test.ShouldBeTrue)

	_, err = svc.Detect(context.Background(), nil)
	test.That(t, errors.Is(err, utils.ErrEmptyImage), test.ShouldBeTrue)

	test.That(t, predictor.calls, test.ShouldEqual, 0)
}

func TestDetectAnnotated(t *testing.T) {
	svc := newService(&fakePredictor{detections: appleAndBanana()})

	annotated, contentType, err := svc.DetectAnnotated(context.Background(), encodedImage(t, imaging.PNG))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, contentType, test.ShouldEqual, "image/png")

	img, format, err := utils.New().DecodeImage(annotated)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, imaging.PNG)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 1000)

	r, g, b, _ := img.At(100, 175).RGBA()
	test.That(t, r>>8, test.ShouldEqual, 0x90)
	test.That(t, g>>8, test.ShouldEqual, 0xee)
	test.That(t, b>>8, test.ShouldEqual, 0x90)
}

func TestHexColor(t *testing.T) {
	test.That(t, hexColor(color.RGBA{R: 255, G: 255, B: 0, A: 255}), test.ShouldEqual, "#ffff00")
	test.That(t, hexColor(color.White), test.ShouldEqual, "#ffffff")
}

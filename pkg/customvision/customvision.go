package customvision

import (
	"VisionDetect/internal/entity"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultModelName = "detect-produce"

	predictionKeyHeader = "Prediction-Key"
	apiVersionPath      = "customvision/v3.0/Prediction"
)

type IPredictor interface {
	DetectImage(ctx context.Context, imageData []byte) ([]entity.Detection, error)
	ProjectID() string
	ModelName() string
}

// Config selects the published iteration to query and the key used to reach it.
type Config struct {
	Endpoint      string
	PredictionKey string
	ProjectID     string
	ModelName     string
	// NoStore asks the service not to keep the submitted image.
	NoStore bool
	// Timeout of zero means the call waits for the service indefinitely.
	Timeout time.Duration
}

type predictionClient struct {
	config Config
	json   jsoniter.API
}

// ConfigFromEnv reads the CUSTOM_VISION_* variables.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:      os.Getenv("CUSTOM_VISION_ENDPOINT"),
		PredictionKey: os.Getenv("CUSTOM_VISION_PREDICTION_KEY"),
		ProjectID:     os.Getenv("CUSTOM_VISION_PROJECT_ID"),
		ModelName:     os.Getenv("CUSTOM_VISION_MODEL_NAME"),
	}

	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName
	}

	if v := os.Getenv("CUSTOM_VISION_NO_STORE"); v != "" {
		noStore, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CUSTOM_VISION_NO_STORE: %w", err)
		}
		cfg.NoStore = noStore
	}

	if v := os.Getenv("CUSTOM_VISION_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CUSTOM_VISION_TIMEOUT: %w", err)
		}
		cfg.Timeout = timeout
	}

	return cfg, nil
}

func New() (IPredictor, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (IPredictor, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("custom vision endpoint is required")
	}
	if cfg.PredictionKey == "" {
		return nil, errors.New("custom vision prediction key is required")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("custom vision project id is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("custom vision model name is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("custom vision endpoint %q is not an absolute http(s) URL", cfg.Endpoint)
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &predictionClient{
		config: cfg,
		json:   jsoniter.ConfigCompatibleWithStandardLibrary,
	}, nil
}

func (c *predictionClient) ProjectID() string {
	return c.config.ProjectID
}

func (c *predictionClient) ModelName() string {
	return c.config.ModelName
}

// DetectImage makes a single attempt against the published iteration. Every failure is a *ServiceError.
func (c *predictionClient) DetectImage(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ServiceError{Message: err.Error(), Err: err}
	}

	endpoint := c.predictionURL()
	logrus.Debug(fmt.Sprintf("Sending %d bytes to custom vision model %s", len(imageData), c.config.ModelName))

	agent := fiber.Post(endpoint).
		Set(predictionKeyHeader, c.config.PredictionKey).
		ContentType("application/octet-stream").
		Body(imageData)
	if c.config.Timeout > 0 {
		agent.Timeout(c.config.Timeout)
	}

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return nil, &ServiceError{Message: err.Error(), Err: err}
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		logrus.Error(fmt.Sprintf("Custom vision request failed: %v", errs[0]))
		return nil, &ServiceError{Message: errs[0].Error(), Err: errs[0]}
	}

	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		svcErr := c.decodeError(code, body)
		logrus.Error(fmt.Sprintf("Custom vision returned status %d: %s", code, svcErr.Message))
		return nil, svcErr
	}

	var result imagePrediction
	if err := c.json.Unmarshal(body, &result); err != nil {
		return nil, &ServiceError{
			StatusCode: code,
			Message:    fmt.Sprintf("malformed prediction response: %v", err),
			Err:        err,
		}
	}

	detections := make([]entity.Detection, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		detections = append(detections, p.toDetection())
	}

	logrus.Debug(fmt.Sprintf("Custom vision returned %d predictions for iteration %s", len(detections), result.Iteration))

	return detections, nil
}

func (c *predictionClient) predictionURL() string {
	target := "image"
	if c.config.NoStore {
		target = "image/nostore"
	}

	return fmt.Sprintf("%s/%s/%s/detect/iterations/%s/%s",
		c.config.Endpoint,
		apiVersionPath,
		url.PathEscape(c.config.ProjectID),
		url.PathEscape(c.config.ModelName),
		target,
	)
}

func (c *predictionClient) decodeError(code int, body []byte) *ServiceError {
	svcErr := &ServiceError{StatusCode: code}

	var apiErr customVisionError
	if err := c.json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		svcErr.Code = apiErr.Code
		svcErr.Message = apiErr.Message
		return svcErr
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		text = fmt.Sprintf("unexpected status %d", code)
	}
	svcErr.Message = text
	return svcErr
}

package handlerUtil

import (
	"VisionDetect/internal/api/detection"
	"VisionDetect/pkg/customvision"
	"VisionDetect/pkg/log"
	"VisionDetect/pkg/response"
	"VisionDetect/pkg/utils"
	"errors"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// PredictionErrorPrefix starts every message shown for a failed prediction call.
const PredictionErrorPrefix = "Error during prediction: "

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	status, body := h.Resolve(requestID, err, path, operation)
	return c.Status(status).JSON(body)
}

// Resolve maps err to the status and body the client receives. Transports that cannot use
// Handle, like websockets, send the body on their own.
func (h *ErrorHandler) Resolve(requestID string, err error, path string, operation string) (int, detection.ErrorResponse) {
	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}

	var svcErr *customvision.ServiceError
	if errors.As(err, &svcErr) {
		fields["upstream_status"] = svcErr.StatusCode
		h.logger.WithFields(fields).Error("Prediction service call failed")
		return fiber.StatusBadGateway, detection.ErrorResponse{
			Error: PredictionErrorPrefix + svcErr.Error(),
		}
	}

	var respErr *response.Error
	if errors.As(err, &respErr) {
		fields["code"] = respErr.Code
		h.logger.WithFields(fields).Warn("Operation failed with error response")
		return respErr.Code, detection.ErrorResponse{Error: err.Error()}
	}

	// Ingestion errors
	if errors.Is(err, utils.ErrNoFile) {
		h.logger.WithFields(fields).Warn("No image uploaded")
		return fiber.StatusBadRequest, detection.ErrorResponse{
			Error: "No image uploaded. Choose a jpg, jpeg or png file.",
		}
	}

	if errors.Is(err, utils.ErrUnsupportedImageType) {
		h.logger.WithFields(fields).Warn("Unsupported image type")
		return fiber.StatusBadRequest, detection.ErrorResponse{
			Error: "Unsupported image type. Only jpg, jpeg and png images are allowed.",
		}
	}

	if errors.Is(err, utils.ErrFileTooLarge) {
		h.logger.WithFields(fields).Warn("File too large")
		return fiber.StatusRequestEntityTooLarge, detection.ErrorResponse{
			Error: "File too large.",
		}
	}

	if errors.Is(err, utils.ErrInvalidImage) || errors.Is(err, utils.ErrEmptyImage) {
		h.logger.WithFields(fields).Warn("Invalid image")
		return fiber.StatusBadRequest, detection.ErrorResponse{
			Error: "The uploaded file is not a valid image.",
		}
	}

	if errors.Is(err, utils.ErrInvalidBase64) {
		h.logger.WithFields(fields).Warn("Invalid base64 payload")
		return fiber.StatusBadRequest, detection.ErrorResponse{
			Error: "Invalid base64 image data.",
		}
	}

	traceID := log.ErrorWithTraceID(fields, "Unexpected error")

	return fiber.StatusInternalServerError, detection.ErrorResponse{
		Error:   "An unexpected error occurred",
		TraceID: traceID,
	}
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Validation failed: " + err.Error(),
		"code":  "VALIDATION_ERROR",
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}

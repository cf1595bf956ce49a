package detectionHandler

import (
	"VisionDetect/internal/api/detection"
	"VisionDetect/internal/middleware"
	contextPkg "VisionDetect/pkg/context"
	"VisionDetect/pkg/handlerUtil"
	"VisionDetect/pkg/log"
	"VisionDetect/pkg/utils"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

const (
	imageFormField = "image"
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func (h *DetectionHandler) ModelInfo(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, h.detectionService.ModelInfo())
}

func (h *DetectionHandler) Detect(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c := contextPkg.FromFiberCtx(ctx)

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing detection request")

	imageData, err := h.imageFromRequest(ctx, requestID)
	if err != nil {
		return h.handleInputError(ctx, errHandler, requestID, err)
	}

	result, err := h.detectionService.Detect(c, imageData)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "detect")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"rendered":   len(result.Boxes),
	}).Info("Detection successful")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
}

func (h *DetectionHandler) DetectAnnotated(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c := contextPkg.FromFiberCtx(ctx)

	errHandler := handlerUtil.New(h.log)

	imageData, err := h.imageFromRequest(ctx, requestID)
	if err != nil {
		return h.handleInputError(ctx, errHandler, requestID, err)
	}

	annotated, contentType, err := h.detectionService.DetectAnnotated(c, imageData)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "detect_annotated")
	}

	ctx.Set(fiber.HeaderContentType, contentType)
	return ctx.Status(fiber.StatusOK).Send(annotated)
}

// imageFromRequest takes the multipart "image" field, or a JSON body with image_base64.
func (h *DetectionHandler) imageFromRequest(ctx *fiber.Ctx, requestID string) ([]byte, error) {
	file, err := ctx.FormFile(imageFormField)
	if err == nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"file_name":  file.Filename,
			"file_size":  file.Size,
		}).Debug("Processing file upload")

		if err := h.utils.ValidateImageFile(file); err != nil {
			return nil, err
		}

		fileContent, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer fileContent.Close()

		return h.utils.ReadFile(fileContent)
	}

	if !strings.HasPrefix(ctx.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		return nil, utils.ErrNoFile
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing JSON request")

	var req detection.DetectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return nil, detection.ErrBadRequest
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return h.utils.DecodeBase64Image(req.ImageBase64)
}

func (h *DetectionHandler) handleInputError(ctx *fiber.Ctx, errHandler *handlerUtil.ErrorHandler, requestID string, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image")
}

// handleWebSocket answers every binary frame with one detection result or one error message.
func (h *DetectionHandler) handleWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}
	path := "/api/v1/detect/ws"
	errHandler := handlerUtil.New(h.log)
	ctx := contextPkg.WithRequestID(context.Background(), requestID)

	h.log.WithField("request_id", requestID).Info("Detection WebSocket client connected")
	defer h.log.WithField("request_id", requestID).Info("Detection WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Detection WebSocket error: %v", err)
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var reply interface{}
		if int64(len(message)) > h.utils.MaxFileSize() {
			_, reply = errHandler.Resolve(requestID, utils.ErrFileTooLarge, path, "detect_ws")
		} else if result, err := h.detectionService.Detect(ctx, message); err != nil {
			_, reply = errHandler.Resolve(requestID, err, path, "detect_ws")
		} else {
			reply = result
		}

		if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			h.log.Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(reply); err != nil {
			h.log.Errorf("Error writing JSON response: %v", err)
			break
		}

		if err := c.SetWriteDeadline(time.Time{}); err != nil {
			h.log.Errorf("Error resetting write deadline: %v", err)
			break
		}
	}
}

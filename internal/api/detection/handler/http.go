package detectionHandler

import (
	detectionService "VisionDetect/internal/api/detection/service"
	"VisionDetect/internal/middleware"
	"VisionDetect/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	utils            utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	utils utils.IUtils,
) *DetectionHandler {
	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		utils:            utils,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Get("/detect/model", h.ModelInfo)
	srv.Post("/detect", h.middleware.NewRateLimiter, h.Detect)
	srv.Post("/detect/annotated", h.middleware.NewRateLimiter, h.DetectAnnotated)

	srv.Use("/detect/ws", wsMiddleware)
	srv.Get("/detect/ws", h.middleware.NewRateLimiter, websocket.New(h.handleWebSocket))
}

package config

import (
	detectionHandler "VisionDetect/internal/api/detection/handler"
	detectionService "VisionDetect/internal/api/detection/service"
	"VisionDetect/internal/middleware"
	"VisionDetect/pkg/annotate"
	"VisionDetect/pkg/customvision"
	"VisionDetect/pkg/utils"
	"VisionDetect/web"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine     *fiber.App
	log        *logrus.Logger
	middleware middleware.Middleware
	validator  *validator.Validate
	utils      utils.IUtils
	predictor  customvision.IPredictor
	renderer   *annotate.Renderer
	handlers   []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.predictor == nil {
		return nil, fmt.Errorf("prediction client is required")
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New()
	}
	if server.renderer == nil {
		server.renderer = annotate.New()
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils(u utils.IUtils) ServerOption {
	return func(s *Server) error {
		s.utils = u
		return nil
	}
}

// WithPredictionClient connects to Custom Vision using the CUSTOM_VISION_* environment.
func WithPredictionClient() ServerOption {
	return func(s *Server) error {
		client, err := customvision.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to create Custom Vision client: %v", err)
			}
			return fmt.Errorf("failed to create prediction client: %w", err)
		}
		s.predictor = client
		return nil
	}
}

func WithPredictor(predictor customvision.IPredictor) ServerOption {
	return func(s *Server) error {
		s.predictor = predictor
		return nil
	}
}

// WithRenderer draws captions when ANNOTATE_DRAW_LABELS is true.
func WithRenderer() ServerOption {
	return func(s *Server) error {
		s.renderer = annotate.New(annotate.WithLabels(os.Getenv("ANNOTATE_DRAW_LABELS") == "true"))
		return nil
	}
}

func (s *Server) RegisterHandler() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	// Detection
	detectionServices := detectionService.NewDetectionService(s.log, s.predictor, s.renderer, s.utils)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.utils)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, detectionHandlers)

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}

	s.setupWebPage()
}

func (s *Server) Run() error {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	s.log.Infof("Ready to predict using model %s in project %s", s.predictor.ModelName(), s.predictor.ProjectID())

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.engine.ShutdownWithTimeout(timeout)
}

func (s *Server) App() *fiber.App {
	return s.engine
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
		})
	})
}

func (s *Server) setupWebPage() {
	s.engine.Use("/", filesystem.New(filesystem.Config{
		Root:   web.FileSystem(),
		Index:  "index.html",
		MaxAge: 300,
	}))
}

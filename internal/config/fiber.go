package config

import (
	"VisionDetect/pkg/utils"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// multipartOverhead leaves room for form boundaries and the JSON/base64 variant of an upload.
const multipartOverhead = 2 * 1024 * 1024

func NewFiber(logger *logrus.Logger, maxUpload int64) *fiber.App {
	if maxUpload <= 0 {
		maxUpload = utils.DefaultMaxFileSize
	}

	app := fiber.New(
		fiber.Config{
			AppName:           "Vision Detect",
			BodyLimit:         int(maxUpload*4/3) + multipartOverhead,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: logger.IsLevelEnabled(logrus.DebugLevel),
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
		})

	return app
}

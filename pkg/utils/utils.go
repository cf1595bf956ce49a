package utils

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/oklog/ulid/v2"
)

// DefaultMaxFileSize matches the prediction API's upload limit.
const DefaultMaxFileSize = 4 * 1024 * 1024

const jpegQuality = 95

var (
	ErrNoFile               = errors.New("no file uploaded")
	ErrEmptyImage           = errors.New("uploaded image is empty")
	ErrFileTooLarge         = errors.New("file size exceeds limit")
	ErrUnsupportedImageType = errors.New("unsupported image type")
	ErrInvalidImage         = errors.New("image could not be decoded")
	ErrInvalidBase64        = errors.New("invalid base64 image data")
)

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ValidateImageFile(file *multipart.FileHeader) error
	ReadFile(file multipart.File) ([]byte, error)
	DecodeBase64Image(data string) ([]byte, error)
	DecodeImage(data []byte) (image.Image, imaging.Format, error)
	EncodeImage(img image.Image, format imaging.Format) ([]byte, error)
	DataURI(format imaging.Format, data []byte) string
	MaxFileSize() int64
}

type utils struct {
	maxFileSize int64
}

func New() IUtils {
	maxFileSize := int64(DefaultMaxFileSize)
	if v, err := strconv.ParseInt(os.Getenv("UPLOAD_MAX_BYTES"), 10, 64); err == nil && v > 0 {
		maxFileSize = v
	}

	return &utils{
		maxFileSize: maxFileSize,
	}
}

func NewWithMaxFileSize(maxFileSize int64) IUtils {
	return &utils{
		maxFileSize: maxFileSize,
	}
}

func (u *utils) MaxFileSize() int64 {
	return u.maxFileSize
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (u *utils) ValidateImageFile(file *multipart.FileHeader) error {
	if file == nil {
		return ErrNoFile
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedImageType, ext)
	}

	if file.Size > u.maxFileSize {
		return ErrFileTooLarge
	}

	return nil
}

func (u *utils) ReadFile(file multipart.File) ([]byte, error) {
	fileBytes, err := io.ReadAll(io.LimitReader(file, u.maxFileSize+1))
	if err != nil {
		return nil, err
	}

	if int64(len(fileBytes)) > u.maxFileSize {
		return nil, ErrFileTooLarge
	}

	return fileBytes, nil
}

// DecodeBase64Image accepts plain base64 or a data URI.
func (u *utils) DecodeBase64Image(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		comma := strings.Index(data, ",")
		if comma == -1 || !strings.HasSuffix(data[:comma], ";base64") {
			return nil, ErrInvalidBase64
		}
		data = data[comma+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidBase64
	}

	if int64(len(decoded)) > u.maxFileSize {
		return nil, ErrFileTooLarge
	}

	return decoded, nil
}

// DecodeImage sniffs the content rather than trusting the file name; only JPEG and PNG pass.
func (u *utils) DecodeImage(data []byte) (image.Image, imaging.Format, error) {
	if len(data) == 0 {
		return nil, 0, ErrEmptyImage
	}

	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	format, err := imaging.FormatFromExtension(name)
	if err != nil || (format != imaging.JPEG && format != imaging.PNG) {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedImageType, name)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return img, format, nil
}

func (u *utils) EncodeImage(img image.Image, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (u *utils) DataURI(format imaging.Format, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", MimeType(format), base64.StdEncoding.EncodeToString(data))
}

func MimeType(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "image/png"
	case imaging.JPEG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

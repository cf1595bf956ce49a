package websocketPkg

import (
	"VisionDetect/internal/api/detection"
	"VisionDetect/pkg/log"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

const defaultStreamURL = "ws://localhost:3000/api/v1/detect/ws"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrDetectionFailed wraps the error message the server sent back for a frame.
var ErrDetectionFailed = errors.New("detection failed")

type IDetectionStream interface {
	Detect(frame []byte) (*detection.DetectionResponse, error)
	IsConnected() bool
	Reconnect() error
	Close()
}

type detectionStream struct {
	url          string
	conn         *websocket.Conn
	mu           sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// reply holds either a detection result or an error body, whichever the server sent.
type reply struct {
	detection.DetectionResponse
	Error   string `json:"error"`
	TraceID string `json:"trace_id"`
}

// New streams to DETECT_WS_URL. Connecting is deferred to the first Detect call.
func New() IDetectionStream {
	url := os.Getenv("DETECT_WS_URL")
	if url == "" {
		url = defaultStreamURL
	}
	return NewWithURL(url)
}

func NewWithURL(url string) IDetectionStream {
	return &detectionStream{
		url:          url,
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

func (c *detectionStream) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

func (c *detectionStream) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	log.Debug(log.Fields{"url": c.url}, "Connecting to detection stream")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			log.Warn(log.Fields{"error": err.Error()}, "Error sending pong")
		}
		return nil
	})

	c.conn = conn

	go c.keepAlive(conn)

	return nil
}

func (c *detectionStream) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout),
		)
		c.conn.Close()
		c.conn = nil
	}
}

func (c *detectionStream) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			log.Warn(log.Fields{"error": err.Error()}, "Ping failed, marking connection as dead")
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

func (c *detectionStream) getConnection() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not connected to %s", c.url)
	}
	return c.conn, nil
}

func (c *detectionStream) drop(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// Detect sends one image as a binary frame and waits for its result. A server side
// failure comes back as ErrDetectionFailed carrying the server's message.
func (c *detectionStream) Detect(frame []byte) (*detection.DetectionResponse, error) {
	conn, err := c.getConnection()
	if err != nil {
		if err := c.Reconnect(); err != nil {
			return nil, fmt.Errorf("cannot connect to detection stream: %w", err)
		}
		conn, err = c.getConnection()
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))

	log.Debug(log.Fields{"bytes": len(frame)}, "Sending image frame")
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.mu.Unlock()
		c.drop(conn)
		return nil, fmt.Errorf("error sending image frame: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.mu.Unlock()

	_, message, err := conn.ReadMessage()
	if err != nil {
		c.drop(conn)
		return nil, fmt.Errorf("error reading detection message: %w", err)
	}

	c.mu.Lock()
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	c.mu.Unlock()

	var result reply
	if err := json.Unmarshal(message, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling detection response: %w", err)
	}

	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrDetectionFailed, result.Error)
	}

	log.Debug(log.Fields{
		"predictions": len(result.Predictions),
		"rendered":    len(result.Boxes),
	}, "Received detection result")

	return &result.DetectionResponse, nil
}

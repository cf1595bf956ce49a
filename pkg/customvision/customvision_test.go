package customvision

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.viam.com/test"
)

const predictionBody = `{
	"id": "a7c1f0b6-0000-0000-0000-000000000000",
	"project": "proj-1",
	"iteration": "iter-7",
	"created": "2024-05-01T10:00:00Z",
	"predictions": [
		{"probability": 0.92, "tagId": "t1", "tagName": "apple",
		 "boundingBox": {"left": 0.1, "top": 0.2, "width": 0.2, "height": 0.3}},
		{"probability": 0.12, "tagId": "t2", "tagName": "banana",
		 "boundingBox": {"left": 0.5, "top": 0.5, "width": 0.1, "height": 0.1}}
	]
}`

func newTestClient(t *testing.T, endpoint string, mutate func(*Config)) IPredictor {
	t.Helper()
	cfg := Config{
		Endpoint:      endpoint,
		PredictionKey: "secret-key",
		ProjectID:     "proj-1",
		ModelName:     "detect-produce",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewWithConfig(cfg)
	test.That(t, err, test.ShouldBeNil)
	return client
}

func TestDetectImage(t *testing.T) {
	var gotPath, gotKey, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Prediction-Key")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, predictionBody)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/", nil)
	detections, err := client.DetectImage(context.Background(), []byte("raw-image-bytes"))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, gotPath, test.ShouldEqual, "/customvision/v3.0/Prediction/proj-1/detect/iterations/detect-produce/image")
	test.That(t, gotKey, test.ShouldEqual, "secret-key")
	test.That(t, gotType, test.ShouldEqual, "application/octet-stream")
	test.That(t, string(gotBody), test.ShouldEqual, "raw-image-bytes")

	test.That(t, detections, test.ShouldHaveLength, 2)
	test.That(t, detections[0].Label, test.ShouldEqual, "apple")
	test.That(t, detections[0].Confidence, test.ShouldAlmostEqual, 0.92)
	test.That(t, detections[0].BoundingBox.Left, test.ShouldAlmostEqual, 0.1)
	test.That(t, detections[0].BoundingBox.Top, test.ShouldAlmostEqual, 0.2)
	test.That(t, detections[0].BoundingBox.Width, test.ShouldAlmostEqual, 0.2)
	test.That(t, detections[0].BoundingBox.Height, test.ShouldAlmostEqual, 0.3)
	test.That(t, detections[1].Label, test.ShouldEqual, "banana")
}

func TestDetectImageNoStore(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{"predictions": []}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) { c.NoStore = true })
	detections, err := client.DetectImage(context.Background(), []byte{1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, detections, test.ShouldBeEmpty)
	test.That(t, gotPath, test.ShouldEqual, "/customvision/v3.0/Prediction/proj-1/detect/iterations/detect-produce/image/nostore")
}

func TestDetectImageServiceErrors(t *testing.T) {
	t.Run("error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code": "Unauthorized", "message": "Access denied due to invalid subscription key."}`)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, nil).DetectImage(context.Background(), []byte{1})
		var svcErr *ServiceError
		test.That(t, errors.As(err, &svcErr), test.ShouldBeTrue)
		test.That(t, svcErr.StatusCode, test.ShouldEqual, http.StatusUnauthorized)
		test.That(t, svcErr.Code, test.ShouldEqual, "Unauthorized")
		test.That(t, err.Error(), test.ShouldContainSubstring, "invalid subscription key")
	})

	t.Run("plain body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, nil).DetectImage(context.Background(), []byte{1})
		var svcErr *ServiceError
		test.That(t, errors.As(err, &svcErr), test.ShouldBeTrue)
		test.That(t, svcErr.StatusCode, test.ShouldEqual, http.StatusBadGateway)
		test.That(t, err.Error(), test.ShouldEqual, "unexpected status 502")
	})

	t.Run("malformed response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"predictions": [`)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, nil).DetectImage(context.Background(), []byte{1})
		var svcErr *ServiceError
		test.That(t, errors.As(err, &svcErr), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "malformed prediction response")
	})

	t.Run("connection refused", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		test.That(t, err, test.ShouldBeNil)
		addr := ln.Addr().String()
		test.That(t, ln.Close(), test.ShouldBeNil)

		_, err = newTestClient(t, "http://"+addr, func(c *Config) { c.Timeout = 2 * time.Second }).
			DetectImage(context.Background(), []byte{1})
		var svcErr *ServiceError
		test.That(t, errors.As(err, &svcErr), test.ShouldBeTrue)
		test.That(t, svcErr.StatusCode, test.ShouldEqual, 0)
	})

	t.Run("cancelled context", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestClient(t, srv.URL, nil).DetectImage(ctx, []byte{1})
		var svcErr *ServiceError
		test.That(t, errors.As(err, &svcErr), test.ShouldBeTrue)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
		test.That(t, calls, test.ShouldEqual, 0)
	})
}

func TestNewWithConfig(t *testing.T) {
	valid := Config{
		Endpoint:      "https://westeurope.api.cognitive.microsoft.com",
		PredictionKey: "k",
		ProjectID:     "p",
		ModelName:     "m",
	}

	client, err := NewWithConfig(valid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, client.ProjectID(), test.ShouldEqual, "p")
	test.That(t, client.ModelName(), test.ShouldEqual, "m")

	for name, mutate := range map[string]func(*Config){
		"endpoint":       func(c *Config) { c.Endpoint = "" },
		"relative url":   func(c *Config) { c.Endpoint = "westeurope.api.cognitive.microsoft.com" },
		"unknown scheme": func(c *Config) { c.Endpoint = "ftp://example.com" },
		"key":            func(c *Config) { c.PredictionKey = "" },
		"project":        func(c *Config) { c.ProjectID = "" },
		"model":          func(c *Config) { c.ModelName = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			_, err := NewWithConfig(cfg)
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CUSTOM_VISION_ENDPOINT", "https://example.cognitiveservices.azure.com/")
	t.Setenv("CUSTOM_VISION_PREDICTION_KEY", "key")
	t.Setenv("CUSTOM_VISION_PROJECT_ID", "proj")
	t.Setenv("CUSTOM_VISION_MODEL_NAME", "")
	t.Setenv("CUSTOM_VISION_NO_STORE", "true")
	t.Setenv("CUSTOM_VISION_TIMEOUT", "15s")

	cfg, err := ConfigFromEnv()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ModelName, test.ShouldEqual, DefaultModelName)
	test.That(t, cfg.NoStore, test.ShouldBeTrue)
	test.That(t, cfg.Timeout, test.ShouldEqual, 15*time.Second)

	t.Setenv("CUSTOM_VISION_TIMEOUT", "soon")
	_, err = ConfigFromEnv()
	test.That(t, err, test.ShouldNotBeNil)
}

package detection

import (
	"VisionDetect/pkg/response"
	"net/http"
)

var (
	ErrBadRequest = response.NewError(http.StatusBadRequest, "bad request")
)

package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobpilot/services"
	"jobpilot/utils"
)

// ScreenshotController serves the captures referenced by failure records.
type ScreenshotController struct {
	store  services.ScreenshotStore
	logger *zap.Logger
}

func NewScreenshotController(store services.ScreenshotStore, logger *zap.Logger) *ScreenshotController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScreenshotController{store: store, logger: logger}
}

func (sc *ScreenshotController) RegisterRoutes(r gin.IRouter, guards ...gin.HandlerFunc) {
	r.Group("/api", guards...).GET("/screenshots/*key", sc.GetScreenshot)
}

// GetScreenshot redirects to a pre-signed link when the store offers one and
// streams the PNG otherwise.
func (sc *ScreenshotController) GetScreenshot(c *gin.Context) {
	if sc.store == nil {
		utils.ErrorResponseWithCode(c, http.StatusServiceUnavailable, "Screenshots are disabled", nil)
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !strings.HasPrefix(key, "screenshots/") {
		key = "screenshots/" + key
	}

	if p, ok := sc.store.(services.Presigner); ok {
		link, err := p.PresignURL(key, 0)
		if err != nil {
			sc.fail(c, key, err)
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, link)
		return
	}

	data, err := sc.store.Get(c.Request.Context(), key)
	if err != nil {
		sc.fail(c, key, err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (sc *ScreenshotController) fail(c *gin.Context, key string, err error) {
	if errors.Is(err, services.ErrScreenshotNotFound) {
		utils.ErrorResponseWithCode(c, http.StatusNotFound, "Screenshot not found", nil)
		return
	}
	sc.logger.Error("Failed to load screenshot", zap.String("key", key), zap.Error(err))
	utils.InternalServerError(c, "Failed to load screenshot", err)
}

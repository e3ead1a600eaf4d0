package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/roster/internal/pictures"
	"github.com/jmerrifield20/roster/internal/profiles"
	"go.uber.org/zap"
)

// respondError maps domain errors to statuses. Anything unrecognised is
// logged and reported as a generic 500 with msg.
func respondError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, profiles.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
	case errors.Is(err, pictures.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "picture not found"})
	case errors.Is(err, profiles.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pictures.ErrUnsupportedMediaType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only JPEG, PNG, GIF and WebP images are accepted"})
	case errors.Is(err, pictures.ErrPayloadTooLarge), errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "picture is too large"})
	case errors.Is(err, profiles.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

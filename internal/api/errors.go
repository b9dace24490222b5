package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/wmcore/internal/domain/werr"
)

// respondErr writes err as a JSON error envelope, mapping a *werr.Error to
// its §7 status and falling back to 500 for anything this package didn't
// wrap itself.
func respondErr(c *gin.Context, err error) {
	var we *werr.Error
	if errors.As(err, &we) {
		c.JSON(we.HTTPStatus(), gin.H{"error": gin.H{"kind": we.Kind, "message": we.Message}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": werr.KindInternalErr, "message": err.Error()}})
}

func respondBadRequest(c *gin.Context, message string) {
	respondErr(c, werr.BadRequest(message))
}

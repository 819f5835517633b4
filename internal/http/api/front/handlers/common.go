package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key set by the front auth middleware.
const UserIDKey = "userID"

// Error codes returned next to the error message.
const (
	CodeNoCredits      = "NO_CREDITS"
	CodeRateLimited    = "RATE_LIMITED"
	CodeAnalysisFailed = "ANALYSIS_FAILED"
)

// getUserID returns the authenticated user id, or "" when the request is anonymous.
func getUserID(c *gin.Context) string {
	value, ok := c.Get(UserIDKey)
	if !ok {
		return ""
	}
	userID, _ := value.(string)
	return strings.TrimSpace(userID)
}

// queryLimit parses the limit query parameter; invalid values yield 0.
func queryLimit(c *gin.Context) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0
	}
	limit, errParse := strconv.Atoi(raw)
	if errParse != nil || limit < 0 {
		return 0
	}
	return limit
}

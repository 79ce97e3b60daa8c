package workmgmt

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler serves GET /api/workmgmt/:resource. When the API is not
// configured or rejects the key, the static fallback is returned with
// "fallback": true.
func Handler(client *Client, logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = config.GetLogger()
	}
	return func(c *gin.Context) {
		resource, err := ParseResource(c.Param("resource"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		params := ListParams{
			Limit:  queryInt(c, "limit"),
			Skip:   queryInt(c, "skip"),
			Status: c.Query("status"),
			Search: c.Query("search"),
		}

		data, err := client.List(c.Request.Context(), resource, params)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"data": data, "fallback": false})
		case errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotConfigured):
			logger.WithFields(logrus.Fields{
				"field":    "workmgmt.Handler",
				"resource": resource,
			}).Warn("serving fallback data: " + err.Error())
			c.JSON(http.StatusOK, gin.H{"data": Fallback(resource), "fallback": true})
		default:
			config.LogError(logger, "workmgmt", "Handler", "list "+string(resource), nil, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
	}
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

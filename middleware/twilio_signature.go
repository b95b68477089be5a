package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	twilioclient "github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

// TwilioSignatureMiddleware rejects webhook calls whose X-Twilio-Signature does
// not match the request. publicURL is the externally visible base URL of the
// service; when empty the URL is rebuilt from the request. Without an auth
// token every request passes.
func TwilioSignatureMiddleware(authToken, publicURL string) gin.HandlerFunc {
	if authToken == "" {
		return func(c *gin.Context) { c.Next() }
	}
	validator := twilioclient.NewRequestValidator(authToken)

	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Malformed form body"})
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for key, values := range c.Request.PostForm {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		url := requestURL(c, publicURL)
		if !validator.Validate(url, params, c.GetHeader("X-Twilio-Signature")) {
			zap.L().Warn("Rejected webhook with bad signature", zap.String("url", url), zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid Twilio signature"})
			return
		}
		c.Next()
	}
}

func requestURL(c *gin.Context, publicURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/") + c.Request.URL.RequestURI()
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

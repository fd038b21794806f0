package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	flashCookie = "flash"
	flashKey    = "flashes"
	flashMaxAge = 300
)

// Flash categories.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot message shown on the next page view.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func addFlash(c *gin.Context, category, message string) {
	pending := pendingFlashes(c)
	pending = append(pending, Flash{Category: category, Message: message})
	c.Set(flashKey, pending)

	data, err := json.Marshal(pending)
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, base64.RawURLEncoding.EncodeToString(data), flashMaxAge, "/", "", false, true)
}

func pendingFlashes(c *gin.Context) []Flash {
	if v, ok := c.Get(flashKey); ok {
		if f, ok := v.([]Flash); ok {
			return f
		}
	}
	return readFlashCookie(c)
}

// consumeFlashes returns the pending flashes and clears them.
func consumeFlashes(c *gin.Context) []Flash {
	flashes := pendingFlashes(c)
	c.Set(flashKey, []Flash{})
	if _, err := c.Cookie(flashCookie); err == nil {
		c.SetCookie(flashCookie, "", -1, "/", "", false, true)
	}
	if flashes == nil {
		flashes = []Flash{}
	}
	return flashes
}

func readFlashCookie(c *gin.Context) []Flash {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		return nil
	}
	return flashes
}

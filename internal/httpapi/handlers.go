package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"casevoice/internal/calls"
	"casevoice/internal/phone"
	"casevoice/internal/ratelimit"
	"casevoice/internal/softphone"
	"casevoice/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Calls   *calls.Service
	Store   calls.Store
	Tokens  *softphone.TokenIssuer
	Numbers *telephony.NumberSearch
	Dials   ratelimit.Limiter

	// FromNumber is the caller ID the softphone dials out with. Returned
	// alongside the token so the client does not hardcode it.
	FromNumber string
}

// userID extracts the authenticated user. Authentication itself lives in the
// upstream gateway; it forwards the verified identity in a header.
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-Id")
}

// --- Voice token ---

// GetVoiceToken issues an access token for the browser softphone.
func (h Handlers) GetVoiceToken(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuer not configured"})
		return
	}
	uid := userID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return
	}
	tok, err := h.Tokens.Issue(uid)
	if err != nil {
		if errors.Is(err, softphone.ErrConfiguration) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "voice service not configured"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      tok.Value,
		"identity":   tok.Identity,
		"from":       h.FromNumber,
		"expires_at": tok.ExpiresAt,
	})
}

// --- Call history ---

func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	uid := userID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return
	}

	filter := calls.HistoryFilter{
		OwnerUserID: uid,
		Status:      calls.Status(c.Query("status")),
		Direction:   calls.Direction(c.Query("direction")),
		Search:      c.Query("search"),
		Page:        intQuery(c, "page"),
		Limit:       intQuery(c, "limit"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		filter.To = t
	}

	page, err := h.Calls.History(c.Request.Context(), filter)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	uid := userID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return
	}
	id := c.Param("provider_call_id")
	rec, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if rec.OwnerUserID != "" && rec.OwnerUserID != uid {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) GetCallStats(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	uid := userID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return
	}
	stats, err := h.Calls.Stats(c.Request.Context(), uid, intQuery(c, "period_days"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats lookup failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// --- Dial preflight ---

type dialCheckRequest struct {
	To string `json:"to"`
}

// DialCheck validates a number and consumes one dial slot from the per-user
// rate limit. The softphone calls it right before connecting, so an admitted
// check counts even when the subsequent connect fails.
func (h Handlers) DialCheck(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return
	}
	var req dialCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	to, err := phone.Normalize(req.To)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		return
	}
	if h.Dials != nil {
		if err := h.Dials.Allow(c.Request.Context(), uid); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimited) {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "dial rate limit exceeded"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"to": to})
}

// --- Number search ---

func (h Handlers) ListAvailableNumbers(c *gin.Context) {
	if h.Numbers == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "number search not configured"})
		return
	}
	if userID(c) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return
	}
	numbers, err := h.Numbers.Search(c.Request.Context(), telephony.NumberQuery{
		Country:  c.Query("country"),
		Type:     c.DefaultQuery("type", "local"),
		AreaCode: c.Query("area_code"),
		Contains: c.Query("contains"),
		Limit:    intQuery(c, "limit"),
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "number search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"numbers": numbers, "count": len(numbers)})
}

func intQuery(c *gin.Context, name string) int {
	v := c.Query(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

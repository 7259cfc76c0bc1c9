package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
)

// WebRTCController hands browsers the ICE configuration for mesh calls.
type WebRTCController struct {
	config webrtc.Configuration
}

func NewWebRTCController(stunServers []string) *WebRTCController {
	cfg := webrtc.Configuration{
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return &WebRTCController{config: cfg}
}

func (c *WebRTCController) Config(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"iceServers":   c.config.ICEServers,
		"sdpSemantics": c.config.SDPSemantics.String(),
	})
}

package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-attend/pkg/camera"
	"github.com/teslashibe/go-attend/pkg/hub"
)

// handleHealth reports 503 when the health check fails.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()
		if err := s.cfg.Health(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "ok",
		"state":  s.ctl.Snapshot().State,
	})
}

// handleState returns the latest snapshot
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.ctl.Snapshot())
}

// handleHistory returns the conversation history, oldest first
func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(s.ctl.Snapshot().History)
}

// TriggerRequest is the body of POST /api/trigger. An empty text starts
// listening; otherwise the text is answered directly.
type TriggerRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTrigger(c *fiber.Ctx) error {
	var req TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	if !s.ctl.TriggerManual(req.Text) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "assistant is busy",
			"state": s.ctl.Snapshot().State,
		})
	}
	s.logger.Info("manual trigger", "with_text", req.Text != "")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

func (s *Server) handleInterrupt(c *fiber.Ctx) error {
	s.ctl.InterruptSpeaking()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	if !s.ctl.Resume() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "cannot resume",
			"state": s.ctl.Snapshot().State,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

// FreeModeRequest is the body of POST /api/free-mode. Without Enabled the
// flag is toggled.
type FreeModeRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleFreeMode(c *fiber.Ctx) error {
	var req FreeModeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	var on bool
	if req.Enabled == nil {
		on = s.ctl.ToggleFreeMode()
	} else {
		on = *req.Enabled
		s.ctl.SetFreeMode(on)
	}
	return c.JSON(fiber.Map{"free_mode": on})
}

// SensitivityRequest is the body of POST /api/sensitivity.
type SensitivityRequest struct {
	Value float64 `json:"value"`
}

func (s *Server) handleSensitivity(c *fiber.Ctx) error {
	var req SensitivityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.ctl.SetSensitivity(req.Value); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sensitivity": req.Value})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	s.ctl.ClearConversationHistory()
	return c.SendStatus(fiber.StatusNoContent)
}

// handleFrame runs an uploaded JPEG through face detection and the
// attention gate.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	frame := c.Body()
	if len(frame) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty frame"})
	}
	// fasthttp reuses the body buffer after the handler returns.
	frame = append([]byte(nil), frame...)

	result, err := s.ctl.ProcessFaceFrame(c.UserContext(), frame)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	if s.cameraHub.ClientCount() > 0 {
		s.cameraHub.BroadcastBinary(frame)
	}
	return c.JSON(result)
}

// handleCamera returns the latest camera frame as a JPEG
func (s *Server) handleCamera(c *fiber.Ctx) error {
	if s.cfg.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no camera configured"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	frame, err := s.cfg.Camera.Frame(ctx)
	if err != nil {
		status := fiber.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = fiber.StatusGatewayTimeout
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(frame)
}

func (s *Server) handleCameraSettings(c *fiber.Ctx) error {
	if s.cfg.CameraSettings == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings unavailable"})
	}
	return c.JSON(fiber.Map{
		"settings":     s.cfg.CameraSettings.Settings(),
		"capabilities": camera.Capabilities(),
	})
}

func (s *Server) handleUpdateCameraSettings(c *fiber.Ctx) error {
	if s.cfg.CameraSettings == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings unavailable"})
	}
	var u camera.Update
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid settings"})
	}
	settings, err := s.cfg.CameraSettings.Update(u)
	if err != nil {
		s.logger.Warn("camera settings rejected", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "settings": settings})
	}
	s.logger.Info("camera settings updated", "width", settings.Width, "height", settings.Height, "zoom", settings.ZoomLevel)
	return c.JSON(fiber.Map{"settings": settings})
}

// handleStateWS streams snapshot and error events, starting with the
// current snapshot.
func (s *Server) handleStateWS(conn *websocket.Conn) {
	initial, err := hub.NewEvent("snapshot", s.ctl.Snapshot())
	if err != nil {
		s.logger.Warn("failed to encode snapshot", "error", err)
		return
	}
	client, err := hub.NewClient(s.stateHub, conn, initial)
	if err != nil {
		return
	}
	client.Run()
}

// handleCameraWS streams binary JPEG frames.
func (s *Server) handleCameraWS(conn *websocket.Conn) {
	client, err := hub.NewClient(s.cameraHub, conn)
	if err != nil {
		return
	}
	client.Run()
}

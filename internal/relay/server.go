package relay

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

type ServerConfig struct {
	// PairingCodeHash is the bcrypt hash of the venue's pairing code.
	PairingCodeHash string
	JWTSecret       string
}

type Server struct {
	app    *fiber.App
	hub    *Hub
	pairer *Pairer
	log    *zap.Logger
}

func NewServer(cfg ServerConfig, log *zap.Logger) *Server {
	s := &Server{
		hub:    NewHub(log),
		pairer: NewPairer(cfg.PairingCodeHash, cfg.JWTSecret, 0),
		log:    log,
	}

	app := fiber.New(fiber.Config{
		AppName:               "caterpos-relay",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	// Metrics endpoint for Prometheus
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	app.Post("/pair", s.handlePair)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:channel", s.authenticate, websocket.New(s.handleWS))

	s.app = app
	return s
}

type pairRequest struct {
	Code     string `json:"code"`
	Channel  string `json:"channel"`
	DeviceID string `json:"device_id"`
}

func (s *Server) handlePair(c *fiber.Ctx) error {
	var req pairRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Channel == "" || req.DeviceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "channel and device_id are required"})
	}

	token, err := s.pairer.Pair(req.Code, req.Channel, req.DeviceID)
	if err != nil {
		if errors.Is(err, ErrBadPairingCode) {
			s.log.Warn("Pairing attempt with bad code",
				zap.String("device_id", req.DeviceID),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid pairing code"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "pairing failed"})
	}

	return c.JSON(fiber.Map{"token": token})
}

// authenticate verifies the Bearer token and that it is scoped to the
// requested channel before allowing the upgrade.
func (s *Server) authenticate(c *fiber.Ctx) error {
	auth := c.Get("Authorization")
	tokenString := strings.TrimPrefix(auth, "Bearer ")
	if tokenString == "" || tokenString == auth {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
	}

	channel, err := s.pairer.Verify(tokenString)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	if channel != c.Params("channel") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "token not valid for this channel"})
	}
	return c.Next()
}

func (s *Server) handleWS(conn *websocket.Conn) {
	channel := conn.Params("channel")
	deviceID := conn.Query("device")
	s.hub.ServeClient(conn, channel, deviceID)
}

// Start runs the hub and listens. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

package leaderboard

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/logger"
)

type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

type topResponse struct {
	User      *Summary `json:"user"`
	RefAmount int      `json:"refAmount"`
}

func NewHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) RegisterPublicRoutes(app fiber.Router) {
	app.Get("/api/users/referrals", h.getTop)
}

func (h *Handler) getTop(c *fiber.Ctx) error {
	standing, found, err := h.service.TopReferrer(c.UserContext())
	if err != nil {
		logger.ForRequest(h.log, c).WithError(err).Error("top referrer failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Server Error",
		})
	}
	if !found {
		return c.JSON(topResponse{})
	}
	return c.JSON(topResponse{User: &standing.User, RefAmount: standing.Count})
}

package user

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/logger"
)

type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

type codeCheckRequest struct {
	ReferredBy string `json:"referred_by"`
}

type emailCheckRequest struct {
	Email string `json:"email"`
}

type emailResponse struct {
	Email string `json:"email"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field"`
	Status  int    `json:"status"`
}

type checkResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// registerResponse is the created user, plus the non-blocking errors (an
// unknown referral code) when there were any.
type registerResponse struct {
	User
	Errors []errorBody `json:"errors,omitempty"`
}

func NewHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterPublicRoutes mounts the user routes. authMiddleware is applied to
// the code and email check endpoints only.
func (h *Handler) RegisterPublicRoutes(app fiber.Router, authMiddleware ...fiber.Handler) {
	app.Get("/api/users", h.getUsers)
	app.Get("/api/users/email", h.getEmails)
	app.Post("/api/users", h.register)

	auth := app.Group("/api/users/auth", authMiddleware...)
	auth.Post("/code", h.checkCode)
	auth.Post("/email", h.checkEmail)
}

func (h *Handler) getUsers(c *fiber.Ctx) error {
	users, err := h.service.List(c.UserContext())
	if err != nil {
		return h.serverError(c, err, "list users failed")
	}
	return c.JSON(users)
}

func (h *Handler) getEmails(c *fiber.Ctx) error {
	emails, err := h.service.ListEmails(c.UserContext())
	if err != nil {
		return h.serverError(c, err, "list emails failed")
	}

	response := make([]emailResponse, 0, len(emails))
	for _, email := range emails {
		response = append(response, emailResponse{Email: email})
	}
	return c.JSON(response)
}

func (h *Handler) register(c *fiber.Ctx) error {
	payload := new(RegisterInput)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON([]errorBody{{
			Message: "Invalid request body",
			Field:   "body",
			Status:  fiber.StatusBadRequest,
		}})
	}

	created, partial, err := h.service.Register(c.UserContext(), *payload)
	if err != nil {
		errs, ok := err.(Errors)
		if !ok || errs.Has(KindStorage) {
			return h.serverError(c, err, "register user failed")
		}
		return c.Status(fiber.StatusBadRequest).JSON(toErrorBodies(errs))
	}

	if len(partial) > 0 {
		logger.ForRequest(h.log, c).WithField("referred_by", *created.ReferredBy).Info("registered with unknown referral code")
	}
	return c.JSON(registerResponse{User: created, Errors: toErrorBodies(partial)})
}

func (h *Handler) checkCode(c *fiber.Ctx) error {
	payload := new(codeCheckRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(checkResponse{Reason: "invalid request body"})
	}

	exists, err := h.service.CodeExists(c.UserContext(), payload.ReferredBy)
	if err != nil {
		return h.serverError(c, err, "code check failed")
	}
	if !exists {
		return c.Status(fiber.StatusUnauthorized).JSON(checkResponse{Reason: "referral code not found"})
	}
	return c.JSON(checkResponse{Success: true})
}

func (h *Handler) checkEmail(c *fiber.Ctx) error {
	payload := new(emailCheckRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(checkResponse{Reason: "invalid request body"})
	}

	exists, err := h.service.EmailExists(c.UserContext(), payload.Email)
	if err != nil {
		return h.serverError(c, err, "email check failed")
	}
	if exists {
		return c.Status(fiber.StatusUnauthorized).JSON(checkResponse{Reason: "email already exists"})
	}
	return c.JSON(checkResponse{Success: true})
}

// serverError logs the full cause and answers with a generic body.
func (h *Handler) serverError(c *fiber.Ctx, err error, msg string) error {
	logger.ForRequest(h.log, c).WithError(err).Error(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Server Error",
	})
}

func toErrorBodies(errs Errors) []errorBody {
	if len(errs) == 0 {
		return nil
	}
	out := make([]errorBody, 0, len(errs))
	for _, e := range errs {
		out = append(out, errorBody{
			Message: e.Message,
			Field:   e.Field,
			Status:  statusFor(e.Kind),
		})
	}
	return out
}

func statusFor(k Kind) int {
	switch k {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindDuplicateEmail:
		return fiber.StatusConflict
	case KindReferralNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

package claim

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/buygag/claimdesk/internal/apperr"
	"github.com/buygag/claimdesk/internal/identity"
)

// Handler exposes claim endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a claim handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type verifyRequest struct {
	SessionID   string `json:"sessionId"`
	OrderNumber string `json:"orderNumber"`
	Email       string `json:"email"`
	Handle      string `json:"handle"`
}

type confirmRequest struct {
	SessionID   string             `json:"sessionId"`
	OrderNumber string             `json:"orderNumber"`
	Email       string             `json:"email"`
	Handle      string             `json:"handle"`
	Identity    *identity.Identity `json:"identity"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type response struct {
	OK                bool               `json:"ok"`
	SessionID         string             `json:"sessionId,omitempty"`
	Step              Step               `json:"step,omitempty"`
	Reason            string             `json:"reason,omitempty"`
	Message           string             `json:"message,omitempty"`
	Fields            []fieldError       `json:"fields,omitempty"`
	Identity          *identity.Identity `json:"identity,omitempty"`
	OrderNumber       string             `json:"orderNumber,omitempty"`
	Email             string             `json:"email,omitempty"`
	Handle            string             `json:"handle,omitempty"`
	AttemptsRemaining int                `json:"attemptsRemaining"`
	Blocked           bool               `json:"blocked"`
}

func (h *Handler) view(s Session) response {
	return response{
		OK:                true,
		SessionID:         s.ID,
		Step:              s.Step,
		Identity:          s.Identity,
		OrderNumber:       s.OrderNumber,
		Email:             s.Email,
		Handle:            s.Handle,
		AttemptsRemaining: h.service.Workflow().AttemptsRemaining(&s),
		Blocked:           s.Blocked,
	}
}

// Start creates a fresh session.
func (h *Handler) Start(c *fiber.Ctx) error {
	session, err := h.service.Start(c.UserContext())
	if err != nil {
		return h.fail(c, Session{}, err)
	}
	return c.Status(http.StatusCreated).JSON(h.view(session))
}

// Get returns the current state of a session.
func (h *Handler) Get(c *fiber.Ctx) error {
	session, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, Session{}, err)
	}
	return c.JSON(h.view(session))
}

// Verify runs a VERIFY attempt.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, Session{}, apperr.InputInvalid())
	}
	session, err := h.service.Verify(c.UserContext(), req.SessionID, c.IP(), Request{
		OrderNumber: req.OrderNumber,
		Email:       req.Email,
		Handle:      req.Handle,
	})
	if err != nil {
		return h.fail(c, session, err)
	}
	return c.JSON(h.view(session))
}

// Back returns to the VERIFY step.
func (h *Handler) Back(c *fiber.Ctx) error {
	var req sessionRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, Session{}, apperr.InputInvalid())
	}
	session, err := h.service.Back(c.UserContext(), req.SessionID)
	if err != nil {
		return h.fail(c, session, err)
	}
	return c.JSON(h.view(session))
}

// Confirm submits the claim.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, Session{}, apperr.InputInvalid())
	}
	in := ConfirmInput{OrderNumber: req.OrderNumber, Email: req.Email, Handle: req.Handle}
	if req.Identity != nil {
		in.NumericID = req.Identity.NumericID
	}
	session, err := h.service.Confirm(c.UserContext(), req.SessionID, in)
	if err != nil {
		return h.fail(c, session, err)
	}
	return c.JSON(h.view(session))
}

func (h *Handler) fail(c *fiber.Ctx, session Session, err error) error {
	classified := apperr.From(err)
	rich := classified.ToServiceError()

	res := response{OK: false, Reason: rich.TextCode, Message: classified.Message}
	if session.ID != "" {
		res = h.view(session)
		res.OK = false
		res.Reason = rich.TextCode
		res.Message = classified.Message
		if session.Step == StepVerify {
			res.Identity = nil
		}
	}
	for _, f := range classified.Fields {
		res.Fields = append(res.Fields, fieldError{Field: f.Field, Message: f.Message})
	}
	if classified.RetryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(classified.RetryAfter.Seconds()))))
	}
	return c.Status(rich.Code).JSON(res)
}

package webhook

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/stagedoor/identity"
)

// Handler terminates provider webhook deliveries over HTTP: it verifies the
// delivery signature, decodes the envelope, and hands it to the Ingestor.
type Handler struct {
	verifier *Verifier
	ingestor *Ingestor
	logger   identity.Logger
	metrics  *Collector
}

// HandlerOption customizes the Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger overrides the default logger.
func WithHandlerLogger(l identity.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHandlerMetrics attaches a prometheus collector for rejections.
func WithHandlerMetrics(c *Collector) HandlerOption {
	return func(h *Handler) {
		h.metrics = c
	}
}

// NewHandler builds the webhook HTTP handler. A nil verifier means the
// signing secret was never configured; deliveries are then refused with a
// server error rather than accepted unverified.
func NewHandler(verifier *Verifier, ingestor *Ingestor, opts ...HandlerOption) *Handler {
	h := &Handler{
		verifier: verifier,
		ingestor: ingestor,
		logger:   identity.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// RegisterRoutes mounts the webhook endpoint on the given router.
func RegisterRoutes(r fiber.Router, h *Handler) {
	r.Post("/webhooks/identity", h.Receive)
}

// Receive handles POST /webhooks/identity.
func (h *Handler) Receive(c *fiber.Ctx) error {
	if h.verifier == nil {
		h.logger.Error("webhook delivery refused: signing secret not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Webhook signing secret not configured",
		})
	}

	body := c.Body()

	err := h.verifier.Verify(
		c.Get(HeaderID),
		c.Get(HeaderTimestamp),
		c.Get(HeaderSignature),
		body,
	)
	if err != nil {
		h.logger.Warn("webhook signature rejected: %v", err)
		if h.metrics != nil {
			h.metrics.RecordRejection()
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		if h.metrics != nil {
			h.metrics.RecordRejection()
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	result, err := h.ingestor.Process(c.UserContext(), event)
	if err != nil {
		return h.renderError(c, event, err)
	}

	status := fiber.StatusOK
	if result.Outcome == OutcomeCreated {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(fiber.Map{
		"outcome": result.Outcome,
		"message": result.Message,
	})
}

func (h *Handler) renderError(c *fiber.Ctx, event Event, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			if h.metrics != nil {
				h.metrics.RecordRejection()
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": richErr.Message,
			})
		case goerrors.CategoryNotFound:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "user_not_found",
			})
		}
	}

	h.logger.Error("webhook %s processing failed: %v", event.Type, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Webhook processing failed",
	})
}

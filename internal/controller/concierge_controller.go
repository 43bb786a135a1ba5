package controller

import (
	"entrust-concierge-be/internal/dto"
	"entrust-concierge-be/internal/pkg/serverutils"
	"entrust-concierge-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IConciergeController interface {
	RegisterRoutes(r fiber.Router, visitorMiddleware fiber.Handler)
	IssueVisitor(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	ClearSession(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	MountWidget(ctx *fiber.Ctx) error
	OpenWidget(ctx *fiber.Ctx) error
	CloseWidget(ctx *fiber.Ctx) error
	DismissInvite(ctx *fiber.Ctx) error
}

type conciergeController struct {
	conciergeService service.IConciergeService
}

func NewConciergeController(conciergeService service.IConciergeService) IConciergeController {
	return &conciergeController{
		conciergeService: conciergeService,
	}
}

func (c *conciergeController) RegisterRoutes(r fiber.Router, visitorMiddleware fiber.Handler) {
	h := r.Group("/concierge/v1")

	// Public
	h.Post("visitor", c.IssueVisitor)
	h.Get("status", c.Status)

	// Scoped to the visitor token
	h.Get("session", visitorMiddleware, c.GetSession)
	h.Delete("session", visitorMiddleware, c.ClearSession)
	h.Post("messages", visitorMiddleware, c.SendMessage)
	h.Post("widget/mount", visitorMiddleware, c.MountWidget)
	h.Post("widget/open", visitorMiddleware, c.OpenWidget)
	h.Post("widget/close", visitorMiddleware, c.CloseWidget)
	h.Post("widget/invite/dismiss", visitorMiddleware, c.DismissInvite)
}

// IssueVisitor mints (or renews) the token that scopes a widget to its conversation
// @Summary Issue visitor token
// @Tags Concierge
// @Accept json
// @Produce json
// @Success 200 {object} dto.VisitorResponse
// @Router /api/concierge/v1/visitor [post]
func (c *conciergeController) IssueVisitor(ctx *fiber.Ctx) error {
	var req dto.IssueVisitorRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return serverutils.NewBadRequestError("Invalid request body")
		}
	}

	res, err := c.conciergeService.IssueVisitor(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Visitor issued", res))
}

// Status reports whether the concierge can answer
// @Summary Concierge availability
// @Tags Concierge
// @Produce json
// @Success 200 {object} dto.StatusResponse
// @Router /api/concierge/v1/status [get]
func (c *conciergeController) Status(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Status retrieved", c.conciergeService.Status(ctx.UserContext())))
}

func (c *conciergeController) GetSession(ctx *fiber.Ctx) error {
	res, err := c.conciergeService.GetSession(ctx.UserContext(), serverutils.VisitorID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session retrieved", res))
}

func (c *conciergeController) ClearSession(ctx *fiber.Ctx) error {
	res, err := c.conciergeService.ClearSession(ctx.UserContext(), serverutils.VisitorID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session cleared", res))
}

// SendMessage accepts a message; the reply arrives over the websocket
// @Summary Send message
// @Tags Concierge
// @Security VisitorToken
// @Accept json
// @Produce json
// @Success 202 {object} dto.SendMessageResponse
// @Failure 400 {object} serverutils.Response
// @Failure 409 {object} serverutils.Response
// @Router /api/concierge/v1/messages [post]
func (c *conciergeController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewBadRequestError("Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.conciergeService.SendMessage(ctx.UserContext(), serverutils.VisitorID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.AcceptedResponse("Message accepted", res))
}

func (c *conciergeController) MountWidget(ctx *fiber.Ctx) error {
	res, err := c.conciergeService.MountWidget(ctx.UserContext(), serverutils.VisitorID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Widget mounted", res))
}

func (c *conciergeController) OpenWidget(ctx *fiber.Ctx) error {
	res, err := c.conciergeService.OpenWidget(ctx.UserContext(), serverutils.VisitorID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Widget opened", res))
}

func (c *conciergeController) CloseWidget(ctx *fiber.Ctx) error {
	res, err := c.conciergeService.CloseWidget(ctx.UserContext(), serverutils.VisitorID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Widget closed", res))
}

func (c *conciergeController) DismissInvite(ctx *fiber.Ctx) error {
	res, err := c.conciergeService.DismissInvite(ctx.UserContext(), serverutils.VisitorID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Invitation dismissed", res))
}

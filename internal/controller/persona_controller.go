package controller

import (
	"ai-consultation-be/internal/pkg/serverutils"
	"ai-consultation-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IPersonaController interface {
	RegisterRoutes(r fiber.Router)
	GetAll(ctx *fiber.Ctx) error
}

type personaController struct {
	service service.IConsultationService
}

func NewPersonaController(service service.IConsultationService) IPersonaController {
	return &personaController{service: service}
}

// RegisterRoutes exposes the roster. It is public so clients can render
// @-mention suggestions before they authenticate.
func (c *personaController) RegisterRoutes(r fiber.Router) {
	r.Get("/personas", c.GetAll)
}

func (c *personaController) GetAll(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get all personas", c.service.ListPersonas(ctx.UserContext())))
}

package controller

import (
	"io"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/serverutils"
	"ai-consultation-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IKnowledgeController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Ingest(ctx *fiber.Ctx) error
	Upload(ctx *fiber.Ctx) error
	Enqueue(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Search(ctx *fiber.Ctx) error
}

type knowledgeController struct {
	service service.IKnowledgeService
}

func NewKnowledgeController(service service.IKnowledgeService) IKnowledgeController {
	return &knowledgeController{service: service}
}

func (c *knowledgeController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/documents", auth)
	h.Get("", c.GetAll)
	h.Post("", c.Ingest)
	h.Post("upload", c.Upload)
	h.Post("async", c.Enqueue)
	h.Post("search", c.Search)
	h.Delete(":sourceId", c.Delete)
}

func (c *knowledgeController) parseDocument(ctx *fiber.Ctx) (*dto.IngestDocumentRequest, error) {
	var req dto.IngestDocumentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *knowledgeController) Ingest(ctx *fiber.Ctx) error {
	req, err := c.parseDocument(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Ingest(ctx.UserContext(), req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success ingest document", res))
}

func (c *knowledgeController) Upload(ctx *fiber.Ctx) error {
	file, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Document file is required")
	}

	req := dto.UploadDocumentRequest{
		SourceId: ctx.FormValue("source_id", file.Filename),
		Title:    ctx.FormValue("title"),
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	f, err := file.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Unable to read document file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Unable to read document file")
	}

	res, err := c.service.IngestFile(ctx.UserContext(), &req, file.Filename, data)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success upload document", res))
}

func (c *knowledgeController) Enqueue(ctx *fiber.Ctx) error {
	req, err := c.parseDocument(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Enqueue(ctx.UserContext(), req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Document queued for ingestion", res))
}

func (c *knowledgeController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.service.ListSources(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get all documents", res))
}

func (c *knowledgeController) Delete(ctx *fiber.Ctx) error {
	if err := c.service.Delete(ctx.UserContext(), ctx.Params("sourceId")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete document", nil))
}

func (c *knowledgeController) Search(ctx *fiber.Ctx) error {
	var req dto.SearchDocumentsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Search(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success search documents", res))
}

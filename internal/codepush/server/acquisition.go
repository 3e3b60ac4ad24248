package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/commands"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/lib"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

// UpdateCheck handles GET /updateCheck, the hot path every client polls.
func (s *Server) UpdateCheck(c *fiber.Ctx) error {
	req := types.UpdateCheckRequest{
		DeploymentKey:  c.Query("deploymentKey"),
		AppVersion:     c.Query("appVersion"),
		PackageHash:    c.Query("packageHash"),
		Label:          c.Query("label"),
		ClientUniqueID: c.Query("clientUniqueId"),
		IsCompanion:    c.QueryBool("isCompanion"),
	}

	resp, err := commands.CheckForUpdate(c.Context(), s.store, s.cache, req)
	if err != nil {
		if errors.Is(err, lib.ErrDeploymentNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "deployment not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"updateInfo": resp})
}

// DownloadBlob streams a stored payload or delta archive. Blob locations
// returned in update responses resolve under this route.
func (s *Server) DownloadBlob(c *fiber.Ctx) error {
	data, err := s.store.DownloadBlob(c.Context(), c.Params("location"))
	if err != nil {
		if errors.Is(err, lib.ErrBlobNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "blob not found")
		}
		return err
	}
	c.Set(fiber.HeaderContentType, "application/octet-stream")
	return c.Send(data)
}

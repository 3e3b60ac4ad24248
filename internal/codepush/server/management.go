package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/commands"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/lib"
)

// releaseRequest is the JSON body for POST /deployments/:key/release. The
// payload travels base64-encoded (encoding/json's []byte convention);
// deriving the manifest and package hash is the server's job, never the
// client's.
type releaseRequest struct {
	Package     []byte `json:"package"`
	AppVersion  string `json:"appVersion"`
	Description string `json:"description"`
	IsMandatory bool   `json:"isMandatory"`
	IsDisabled  bool   `json:"isDisabled"`
	Rollout     int    `json:"rollout"`
}

type rollbackRequest struct {
	TargetRelease string `json:"targetRelease"`
}

type promoteRequest struct {
	AppVersion  string `json:"appVersion"`
	Description string `json:"description"`
	IsMandatory *bool  `json:"isMandatory"`
	IsDisabled  *bool  `json:"isDisabled"`
	Rollout     int    `json:"rollout"`
}

type createDeploymentRequest struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// CreateDeployment provisions a new deployment when the storage backend
// supports it.
func (s *Server) CreateDeployment(c *fiber.Ctx) error {
	creator, ok := s.store.(lib.DeploymentCreator)
	if !ok {
		return fiber.NewError(fiber.StatusNotImplemented, "storage backend does not support deployment creation")
	}

	var body createDeploymentRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid deployment body")
	}
	if body.Name == "" || body.Key == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name and key are required")
	}

	deployment, err := creator.CreateDeployment(c.Context(), body.Name, body.Key)
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"deployment": deployment})
}

// Release handles POST /deployments/:key/release: it uploads the payload
// and its manifest, then commits the release.
func (s *Server) Release(c *fiber.Ctx) error {
	var body releaseRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid release body")
	}
	if len(body.Package) == 0 || body.AppVersion == "" {
		return fiber.NewError(fiber.StatusBadRequest, "package and appVersion are required")
	}

	manifest, packageHash, err := lib.DescribePayload(body.Package)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable package archive")
	}

	blobURL, err := s.store.UploadBlob(c.Context(), body.Package)
	if err != nil {
		return err
	}

	info := commands.ReleaseInfo{
		AppVersion:  body.AppVersion,
		PackageHash: packageHash,
		BlobURL:     blobURL,
		Size:        int64(len(body.Package)),
		Description: body.Description,
		IsMandatory: body.IsMandatory,
		IsDisabled:  body.IsDisabled,
		Rollout:     body.Rollout,
	}
	if manifest != nil {
		manifestData, err := manifest.Serialize()
		if err != nil {
			return err
		}
		manifestURL, err := s.store.UploadBlob(c.Context(), manifestData)
		if err != nil {
			return err
		}
		info.ManifestBlobURL = manifestURL
	}

	pkg, err := commands.CommitRelease(c.Context(), s.deps(), c.Params("key"), info)
	if err != nil {
		return mapMutationError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"package": pkg})
}

// Rollback handles POST /deployments/:key/rollback.
func (s *Server) Rollback(c *fiber.Ctx) error {
	var body rollbackRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid rollback body")
		}
	}

	pkg, err := commands.Rollback(c.Context(), s.deps(), c.Params("key"), body.TargetRelease)
	if err != nil {
		return mapMutationError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"package": pkg})
}

// Promote handles POST /deployments/:key/promote/:dest.
func (s *Server) Promote(c *fiber.Ctx) error {
	var body promoteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid promote body")
		}
	}

	info := commands.PromoteInfo{
		AppVersion:  body.AppVersion,
		Description: body.Description,
		IsMandatory: body.IsMandatory,
		IsDisabled:  body.IsDisabled,
		Rollout:     body.Rollout,
	}
	pkg, err := commands.Promote(c.Context(), s.deps(), c.Params("key"), c.Params("dest"), info)
	if err != nil {
		return mapMutationError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"package": pkg})
}

// ClearHistory handles DELETE /deployments/:key/history.
func (s *Server) ClearHistory(c *fiber.Ctx) error {
	if err := commands.ClearHistory(c.Context(), s.deps(), c.Params("key")); err != nil {
		return mapMutationError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// mapMutationError translates command errors into HTTP statuses. Unmatched
// errors fall through to the 500 handler.
func mapMutationError(err error) error {
	switch {
	case errors.Is(err, lib.ErrDeploymentNotFound):
		return fiber.NewError(fiber.StatusNotFound, "deployment not found")
	case errors.Is(err, commands.ErrConflictingRollout):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, commands.ErrInvalidRollout):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}

// Package server wires the fiber HTTP surface over the orchestration
// commands. Handlers only bind, validate and map errors; every decision is
// made by the commands and lib packages.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/commands"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/lib"
)

// Server holds the collaborators shared by every handler.
type Server struct {
	store  lib.Storage
	cache  *lib.ResponseCache
	differ *lib.PackageDiffer
	log    *logrus.Entry
}

// New builds a server over a storage backend, response cache and differ.
func New(store lib.Storage, cache *lib.ResponseCache, differ *lib.PackageDiffer) *Server {
	return &Server{
		store:  store,
		cache:  cache,
		differ: differ,
		log:    logrus.WithField("component", "server"),
	}
}

// App assembles the fiber application with all routes registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: s.errorHandler,
		BodyLimit:    200 * 1024 * 1024,
	})

	// Acquisition (client-facing)
	app.Get("/updateCheck", s.UpdateCheck)
	app.Get("/blobs/:location", s.DownloadBlob)

	// Management
	app.Post("/deployments", s.CreateDeployment)
	app.Post("/deployments/:key/release", s.Release)
	app.Post("/deployments/:key/rollback", s.Rollback)
	app.Post("/deployments/:key/promote/:dest", s.Promote)
	app.Delete("/deployments/:key/history", s.ClearHistory)

	// Health
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	return app
}

func (s *Server) deps() commands.Deps {
	return commands.Deps{Store: s.store, Cache: s.cache, Differ: s.differ}
}

// errorHandler maps handler errors onto JSON responses and logs anything
// that surfaces as a 500.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code == fiber.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// Package web serves the dashboard pages. They are static and talk to the
// JSON API from the browser.
package web

import (
	"embed"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

//go:embed static/*.html
var pages embed.FS

func page(name string) (fiber.Handler, error) {
	body, err := pages.ReadFile("static/" + name)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %s: %w", name, err)
	}

	return func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.Send(body)
	}, nil
}

// Register mounts the landing page at / and the country view at /country.
func Register(router fiber.Router) error {
	index, err := page("index.html")
	if err != nil {
		return err
	}
	country, err := page("country.html")
	if err != nil {
		return err
	}

	router.Get("/", index)
	router.Get("/country", country)
	return nil
}

package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/postpulse/postpulse/internal/apperr"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

// respondError maps domain errors onto HTTP statuses. Anything unrecognized is
// a 500 with a generic body so internals never leak.
func respondError(c *fiber.Ctx, err error) error {
	var validation *apperr.ValidationError
	if errors.As(err, &validation) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validation.Error(),
			"field": validation.Field,
		})
	}

	var connRequired *apperr.ConnectionRequiredError
	if errors.As(err, &connRequired) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":    connRequired.Error(),
			"platform": connRequired.Platform,
		})
	}

	var notFound *apperr.NotFoundError
	if errors.As(err, &notFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFound.Error(),
		})
	}

	var notEditable *apperr.NotEditableError
	if errors.As(err, &notEditable) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": notEditable.Error(),
		})
	}

	var external *apperr.ExternalFetchError
	if errors.As(err, &external) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    external.Error(),
			"platform": external.Platform,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "something went wrong",
	})
}

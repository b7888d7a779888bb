package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/medveriground/bbox-annotator/pkg/session"
)

// Response is the envelope of every JSON answer
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func success(message string, data interface{}) Response {
	return Response{Success: true, Message: message, Data: data}
}

var validate = newValidator()

// newValidator reports fields by their json names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError is a request that failed its struct tags
type validationError struct {
	field string
	msg   string
}

func (e *validationError) Error() string { return e.msg }

// bind parses the body into req and checks its validate tags
func bind(ctx *fiber.Ctx, req interface{}) error {
	if err := parse(ctx, req); err != nil {
		return err
	}
	return check(req)
}

func parse(ctx *fiber.Ctx, req interface{}) error {
	if len(ctx.Body()) == 0 {
		return nil
	}
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func check(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &validationError{
				field: fe.Field(),
				msg:   fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()),
			}
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	var fe *fiber.Error
	var se *session.SetupError
	var ve *validationError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &se), errors.As(err, &ve):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrAlreadyLoaded),
		errors.Is(err, session.ErrDialogPending),
		errors.Is(err, session.ErrNoDialog):
		return fiber.StatusConflict
	case errors.Is(err, session.ErrReasonRequired),
		errors.Is(err, session.ErrUnknownReason),
		errors.Is(err, session.ErrUnknownDecision),
		errors.Is(err, session.ErrNoBox),
		errors.Is(err, session.ErrImageUnavailable):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders every returned error as a Response
func (s *Server) errorHandler(ctx *fiber.Ctx, err error) error {
	code := statusOf(err)
	resp := Response{Message: err.Error()}

	var se *session.SetupError
	var ve *validationError
	switch {
	case errors.As(err, &se):
		resp.Field = se.Field
	case errors.As(err, &ve):
		resp.Field = ve.field
	}

	if code >= fiber.StatusInternalServerError {
		s.log.Error("server", "request failed", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"error":  err,
		})
		resp.Message = "internal error"
	}
	return ctx.Status(code).JSON(resp)
}

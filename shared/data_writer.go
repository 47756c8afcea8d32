package shared

import (
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON is the sonic configuration shared by the HTTP layer and the security store codecs.
var JSON = sonic.Config{
	UseNumber:            true,
	EscapeHTML:           false,
	SortMapKeys:          false,
	CompactMarshaler:     true,
	NoQuoteTextMarshaler: true,
	NoNullSliceOrMap:     true,
}.Froze()

var (
	successResponse         = mustMarshal(Response{Code: 200, Message: "Success"})
	notFoundResponse        = mustMarshal(Response{Code: 404, Message: "Not Found"})
	unauthorizedResponse    = mustMarshal(Response{Code: 401, Message: "Unauthorized"})
	badRequestResponse      = mustMarshal(Response{Code: 400, Message: "Bad Request"})
	forbiddenResponse       = mustMarshal(Response{Code: 403, Message: "Forbidden"})
	internalErrorResponse   = mustMarshal(Response{Code: 500, Message: "Internal Server Error"})
	tooManyRequestsResponse = mustMarshal(Response{Code: 429, Message: "Too Many Requests"})
)

func mustMarshal(v interface{}) []byte {
	b, _ := JSON.Marshal(v)
	return b
}

func sendRaw(c *fiber.Ctx, httpCode int, body []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Status(httpCode).Send(body)
}

func ResponseJSON(c *fiber.Ctx, httpCode int, message string, data interface{}) error {
	if data == nil {
		switch {
		case httpCode == 200 && message == "Success":
			return sendRaw(c, httpCode, successResponse)
		case httpCode == 400 && message == "Bad Request":
			return sendRaw(c, httpCode, badRequestResponse)
		case httpCode == 401 && message == "Unauthorized":
			return sendRaw(c, httpCode, unauthorizedResponse)
		case httpCode == 403 && message == "Forbidden":
			return sendRaw(c, httpCode, forbiddenResponse)
		case httpCode == 404 && message == "Not Found":
			return sendRaw(c, httpCode, notFoundResponse)
		case httpCode == 429 && message == "Too Many Requests":
			return sendRaw(c, httpCode, tooManyRequestsResponse)
		case httpCode == 500 && message == "Internal Server Error":
			return sendRaw(c, httpCode, internalErrorResponse)
		}
	}

	body, err := JSON.Marshal(Response{
		Code:    httpCode,
		Message: message,
		Data:    data,
	})
	if err != nil {
		return err
	}
	return sendRaw(c, httpCode, body)
}

func ResponseOK(c *fiber.Ctx, data interface{}) error {
	return ResponseJSON(c, 200, "Success", data)
}

func ResponseNotFound(c *fiber.Ctx) error {
	return ResponseJSON(c, 404, "Not Found", nil)
}

func ResponseUnauthorized(c *fiber.Ctx) error {
	return ResponseJSON(c, 401, "Unauthorized", nil)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Bad Request"
	}
	return ResponseJSON(c, 400, message, nil)
}

func ResponseForbidden(c *fiber.Ctx) error {
	return ResponseJSON(c, 403, "Forbidden", nil)
}

func ResponseInternalError(c *fiber.Ctx, err error) error {
	var detail interface{}
	if err != nil {
		detail = err.Error()
	}
	return ResponseJSON(c, 500, "Internal Server Error", detail)
}

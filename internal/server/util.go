package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

type errorResp struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func newErrorResp(msg string) errorResp {
	return errorResp{Error: msg, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

func parsePID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id: %q is not a valid process id", raw)
	}
	return id, nil
}

// bindMessage turns a gin binding error into a client facing message,
// naming each failing field.
func bindMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		parts := make([]string, 0, len(ve))
		for _, fe := range ve {
			parts = append(parts, fieldName(fe)+": "+ruleMessage(fe))
		}
		return strings.Join(parts, "; ")
	}
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		return fmt.Sprintf("%s: unexpected %s", ute.Field, ute.Value)
	}
	return "malformed request body: " + err.Error()
}

func fieldName(fe validator.FieldError) string {
	n := fe.Field()
	if n == "" {
		return fe.StructField()
	}
	return strings.ToLower(n[:1]) + n[1:]
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be blank"
	case "min":
		return "must not be empty"
	default:
		return "failed on " + fe.Tag()
	}
}

package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Error renders the last error attached to the gin context. Handlers call
// c.Error(err) and return.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		err := last.Err
		log := logger.WithContext(c.Request.Context(), zap.String("path", c.FullPath()))

		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]errutil.Detail, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, errutil.Detail{Field: fe.Field(), Message: fe.Tag()})
			}
			be := errutil.New(errutil.StatusValidationFailed, "invalid request", errutil.WithDetails(details...)).(errutil.BaseError)
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		if malformed(err) {
			be := errutil.New(errutil.StatusBadRequest, "malformed request").(errutil.BaseError)
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		var base errutil.BaseError
		if errors.As(err, &base) {
			if base.Code.HTTPStatus() >= http.StatusInternalServerError {
				log.Error("request failed", zap.Error(err))
			}
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		code := errutil.StatusOf(err)
		if code == errutil.StatusInternal {
			log.Error("unhandled error", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errutil.BaseError{Code: code, Message: "internal error"}.JSON())
			return
		}

		body := errutil.BaseError{Code: code, Message: err.Error()}
		var detailer interface{ Details() []errutil.Detail }
		if errors.As(err, &detailer) {
			body.Details = detailer.Details()
		}
		c.JSON(code.HTTPStatus(), body.JSON())
	}
}

// malformed reports body and query decoding failures from gin binding.
func malformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var numErr *strconv.NumError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &numErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stateErr struct{}

func (stateErr) Error() string      { return "state" }
func (stateErr) Status() CoreStatus { return StatusConflict }

func TestConstructorsKeepCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := BadGateway("messaging gateway unavailable", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusBadGateway, StatusOf(err))
	require.Equal(t, http.StatusBadGateway, StatusOf(err).HTTPStatus())
}

func TestJSONHidesCause(t *testing.T) {
	err := BadGateway("renderer unavailable", errors.New("secret internal detail")).(BaseError)

	body := err.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, "renderer unavailable", body["message"])
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, StatusConflict, StatusOf(fmt.Errorf("wrap: %w", stateErr{})))
	require.Equal(t, StatusTimeout, StatusOf(context.DeadlineExceeded))
	require.Equal(t, StatusInternal, StatusOf(errors.New("boom")))
	require.True(t, Is(ValidationFailed("notes required", nil), StatusValidationFailed))
	require.False(t, Is(nil, StatusNotFound))
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusUnprocessableEntity, StatusValidationFailed.HTTPStatus())
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusConflict, StatusConflict.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, CoreStatus("nope").HTTPStatus())
}

func TestToGRPCError(t *testing.T) {
	err := ToGRPCError(NotFound("assignment not found", errors.New("record not found")))
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Equal(t, "assignment not found", status.Convert(err).Message())

	err = ToGRPCError(fmt.Errorf("wrap: %w", stateErr{}))
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	err = ToGRPCError(fmt.Errorf("send: %w", context.Canceled))
	require.Equal(t, codes.Canceled, status.Code(err))

	err = ToGRPCError(errors.New("pq: connection reset"))
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, "internal error", status.Convert(err).Message())

	already := status.Error(codes.Aborted, "busy")
	require.Equal(t, already, ToGRPCError(already))

	require.NoError(t, ToGRPCError(nil))
	require.Equal(t, codes.Unknown, CoreStatus("made_up").GRPCCode())
}

func TestUnaryServerInterceptorMapsHandlerErrors(t *testing.T) {
	intercept := UnaryServerInterceptor()

	_, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		return nil, ValidationFailed("channel is required", nil)
	})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
}

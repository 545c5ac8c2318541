package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/http/response"
)

// EnvelopeVersion is the "v" field of every JSON response.
const EnvelopeVersion = response.Version

// EnvelopeTransformer wraps every huma response body in the
// {v, success, data | error} envelope.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case response.Envelope:
		return body, nil
	case *APIError:
		return response.Fail(response.ErrorBody{Code: body.Code, Message: body.Message, Details: body.Details}), nil
	case *domainerrors.Error:
		apiErr := fromDomainError(body)
		return response.Fail(response.ErrorBody{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details}), nil
	case error:
		var domainErr *domainerrors.Error
		if errors.As(body, &domainErr) {
			return EnvelopeTransformer(nil, "", domainErr)
		}
		return response.Fail(response.ErrorBody{Code: string(domainerrors.CodeInternal), Message: body.Error()}), nil
	default:
		return response.Ok(v), nil
	}
}

package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/internal/models"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
)

type fakeAuthenticator struct {
	req models.LoginRequest
}

func (f *fakeAuthenticator) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.req = req
	if req.Password != "s3cret" {
		return nil, appErrors.ErrInvalidCreds
	}
	return &models.LoginResponse{Token: "signed", ExpiresIn: 3600, Email: req.Email, Role: "admin"}, nil
}

func newAuthRouter(auth *fakeAuthenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/login", NewAuthHandler(auth).Login)
	return r
}

func TestAuthHandlerLogin(t *testing.T) {
	auth := &fakeAuthenticator{}
	rec := doRequest(newAuthRouter(auth), http.MethodPost, "/auth/login", []byte(`{"email":"dean@college.edu","password":"s3cret"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dean@college.edu", auth.req.Email)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), `"token":"signed"`)
}

func TestAuthHandlerLoginFailures(t *testing.T) {
	r := newAuthRouter(&fakeAuthenticator{})

	rec := doRequest(r, http.MethodPost, "/auth/login", []byte(`{"email":"dean@college.edu","password":"nope"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope(t, rec).Error.Code)

	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPost, "/auth/login", []byte(`not json`)).Code)
}

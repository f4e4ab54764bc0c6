package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/auth"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/user"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Register(ctx context.Context, email, password, name string) (*user.User, error) {
	args := m.Called(ctx, email, password, name)
	if u := args.Get(0); u != nil {
		return u.(*user.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) Login(ctx context.Context, email, password string) (*user.User, error) {
	args := m.Called(ctx, email, password)
	if u := args.Get(0); u != nil {
		return u.(*user.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) GetByID(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*user.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func setup(svc user.Service) (*gin.Engine, *auth.JWTManager) {
	gin.SetMode(gin.TestMode)
	jwtManager := auth.NewJWTManager("test-secret", time.Minute)
	r := gin.New()
	RegisterRoutes(r.Group("/api"), NewHandler(svc, jwtManager), auth.AuthRequired(jwtManager))
	return r, jwtManager
}

func do(r *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterEndpoint(t *testing.T) {
	svc := new(mockService)
	svc.On("Register", mock.Anything, "guest@example.com", "password123", "Guest").
		Return(&user.User{ID: "user-1", Email: "guest@example.com", Name: "Guest", Role: user.RoleUser}, nil)
	svc.On("Register", mock.Anything, "taken@example.com", "password123", "Guest").
		Return(nil, user.ErrEmailAlreadyUsed)
	r, _ := setup(svc)

	w := do(r, http.MethodPost, "/api/auth/register", RegisterRequest{Email: "guest@example.com", Password: "password123", Name: "Guest"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp MeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.User.ID)

	w = do(r, http.MethodPost, "/api/auth/register", RegisterRequest{Email: "taken@example.com", Password: "password123", Name: "Guest"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/auth/register", map[string]string{"email": "not-an-email"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginAndMe(t *testing.T) {
	u := &user.User{ID: "user-1", Email: "guest@example.com", Name: "Guest", Role: user.RoleAdmin}
	svc := new(mockService)
	svc.On("Login", mock.Anything, "guest@example.com", "password123").Return(u, nil)
	svc.On("Login", mock.Anything, "guest@example.com", "nope").Return(nil, user.ErrInvalidCredentials)
	svc.On("GetByID", mock.Anything, "user-1").Return(u, nil)
	r, jwtManager := setup(svc)

	w := do(r, http.MethodPost, "/api/auth/login", LoginRequest{Email: "guest@example.com", Password: "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/auth/login", LoginRequest{Email: "guest@example.com", Password: "password123"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	claims, err := jwtManager.Verify(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, claims.Role)

	w = do(r, http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "guest@example.com", me.User.Email)

	w = do(r, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

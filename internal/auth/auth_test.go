package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkline/adengine/internal/models"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers { return &memUsers{users: make(map[string]*models.User)} }

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[normalizeEmail(email)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) Create(_ context.Context, email, hash string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalizeEmail(email)
	if _, ok := m.users[email]; ok {
		return nil, ErrEmailTaken
	}
	u := &models.User{ID: uuid.New(), Email: email, Password: hash, Role: role, CreatedAt: time.Now()}
	m.users[email] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) List(_ context.Context) ([]models.UserPublic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserPublic
	for _, u := range m.users {
		out = append(out, u.ToPublic())
	}
	return out, nil
}

func TestMain(m *testing.M) {
	passwordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func TestPasswordHash(t *testing.T) {
	require := require.New(t)
	hash, err := hashPassword("correct horse")
	require.NoError(err)
	require.True(checkPassword("correct horse", hash))
	require.False(checkPassword("wrong horse", hash))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(err)
	require.Equal(bcrypt.MinCost, cost)

	_, err = hashPassword(strings.Repeat("x", 73))
	require.ErrorIs(err, ErrPasswordTooLong)
}

func TestEnsureAdmin(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	users := newMemUsers()

	require.NoError(EnsureAdmin(ctx, users, "Ops@Example.com", "s3cret-pass", nil))
	u, err := users.GetByEmail(ctx, "ops@example.com")
	require.NoError(err)
	require.Equal(models.RoleAdmin, u.Role)
	hash := u.Password

	// second start keeps the existing account
	require.NoError(EnsureAdmin(ctx, users, "ops@example.com", "other-pass", nil))
	u, err = users.GetByEmail(ctx, "ops@example.com")
	require.NoError(err)
	require.Equal(hash, u.Password)

	require.NoError(EnsureAdmin(ctx, users, "", "", nil))
}

func TestJWT(t *testing.T) {
	require := require.New(t)
	svc := NewJWTService("test-secret", 1)
	id := uuid.New()

	token, err := svc.Generate(id, "ops@example.com", "admin")
	require.NoError(err)

	claims, err := svc.Validate(token)
	require.NoError(err)
	require.Equal(id, claims.UserID)
	require.Equal("admin", claims.Role)

	uid, email, role, err := svc.ValidateToken(token)
	require.NoError(err)
	require.Equal(id.String(), uid)
	require.Equal("ops@example.com", email)
	require.Equal("admin", role)

	_, err = NewJWTService("other-secret", 1).Validate(token)
	require.ErrorIs(err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	require.ErrorIs(err, ErrInvalidToken)
}

func authRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.POST("/admin/users", h.CreateUser)
	return r
}

func postJSON(r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	require := require.New(t)
	users := newMemUsers()
	require.NoError(EnsureAdmin(context.Background(), users, "ops@example.com", "s3cret-pass", nil))
	jwtSvc := NewJWTService("test-secret", 24)
	r := authRouter(NewHandler(users, jwtSvc, nil))

	w := postJSON(r, "/auth/login", LoginRequest{Email: "ops@example.com", Password: "s3cret-pass"})
	require.Equal(http.StatusOK, w.Code)
	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(models.RoleAdmin, body.Data.User.Role)
	_, err := jwtSvc.Validate(body.Data.Token)
	require.NoError(err)

	w = postJSON(r, "/auth/login", LoginRequest{Email: "ops@example.com", Password: "wrong"})
	require.Equal(http.StatusUnauthorized, w.Code)
	w = postJSON(r, "/auth/login", LoginRequest{Email: "nobody@example.com", Password: "s3cret-pass"})
	require.Equal(http.StatusUnauthorized, w.Code)
	w = postJSON(r, "/auth/login", map[string]string{"email": "not-an-email"})
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestCreateUser(t *testing.T) {
	require := require.New(t)
	users := newMemUsers()
	r := authRouter(NewHandler(users, NewJWTService("x", 1), nil))

	w := postJSON(r, "/admin/users", CreateUserRequest{Email: "viewer@example.com", Password: "long-enough"})
	require.Equal(http.StatusCreated, w.Code)
	u, err := users.GetByEmail(context.Background(), "viewer@example.com")
	require.NoError(err)
	require.Equal(models.RoleViewer, u.Role)

	w = postJSON(r, "/admin/users", CreateUserRequest{Email: "viewer@example.com", Password: "long-enough"})
	require.Equal(http.StatusConflict, w.Code)
	w = postJSON(r, "/admin/users", CreateUserRequest{Email: "x@example.com", Password: "long-enough", Role: "owner"})
	require.Equal(http.StatusBadRequest, w.Code)
}

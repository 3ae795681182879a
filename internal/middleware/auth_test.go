package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func performRequest(mw echo.MiddlewareFunc, headers map[string]string) (int, uint, uint) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var userID, adminID uint
	handler := mw(func(c echo.Context) error {
		userID = UserID(c)
		adminID = AdminID(c)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec.Code, userID, adminID
}

func TestRequireUser(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		wantUser uint
	}{
		{"valid user", map[string]string{HeaderUserID: "42"}, http.StatusOK, 42},
		{"missing header", nil, http.StatusUnauthorized, 0},
		{"non-numeric id", map[string]string{HeaderUserID: "abc"}, http.StatusUnauthorized, 0},
		{"zero id", map[string]string{HeaderUserID: "0"}, http.StatusUnauthorized, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, userID, _ := performRequest(RequireUser(), tt.headers)
			if code != tt.wantCode {
				t.Errorf("status = %d; want %d", code, tt.wantCode)
			}
			if userID != tt.wantUser {
				t.Errorf("user id = %d; want %d", userID, tt.wantUser)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]string
		wantCode  int
		wantAdmin uint
	}{
		{"admin", map[string]string{HeaderUserID: "7", HeaderUserRole: "admin"}, http.StatusOK, 7},
		{"member role", map[string]string{HeaderUserID: "7", HeaderUserRole: "member"}, http.StatusForbidden, 0},
		{"no role", map[string]string{HeaderUserID: "7"}, http.StatusForbidden, 0},
		{"no identity", map[string]string{HeaderUserRole: "admin"}, http.StatusUnauthorized, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, adminID := performRequest(RequireAdmin(), tt.headers)
			if code != tt.wantCode {
				t.Errorf("status = %d; want %d", code, tt.wantCode)
			}
			if adminID != tt.wantAdmin {
				t.Errorf("admin id = %d; want %d", adminID, tt.wantAdmin)
			}
		})
	}
}

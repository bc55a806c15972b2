package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testKey = "test-signing-key"

func TestIssueParse(t *testing.T) {
	now := time.Now()
	s, err := Issue("u1", "teacher", "Ada", "qrattend", testKey, time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := Parse(s.AccessToken, testKey, "qrattend")
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID() != "u1" || claims.Role != "teacher" || claims.Name != "Ada" {
		t.Fatalf("claims = %+v", claims)
	}

	cases := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{"wrong key", s.AccessToken, "other-key", "qrattend"},
		{"wrong issuer", s.AccessToken, testKey, "someone-else"},
		{"garbage", "not.a.jwt", testKey, "qrattend"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.token, tc.key, tc.issuer); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	expired, err := Issue("u1", "student", "", "qrattend", testKey, time.Minute, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(expired.AccessToken, testKey, "qrattend"); err == nil {
		t.Fatal("expired token accepted")
	}
	if _, err := Issue("u1", "student", "", "qrattend", "", time.Minute, now); err == nil {
		t.Fatal("empty key accepted")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", Authenticate(testKey, "qrattend"), RequireRole("teacher"))
	g.GET("/whoami", func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.UserID())
	})

	teacher, _ := Issue("t1", "teacher", "", "qrattend", testKey, time.Hour, time.Now())
	student, _ := Issue("s1", "student", "", "qrattend", testKey, time.Hour, time.Now())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + student.AccessToken, http.StatusForbidden},
		{"teacher", "bearer " + teacher.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusOK && w.Body.String() != "t1" {
				t.Fatalf("body = %q", w.Body.String())
			}
		})
	}
}

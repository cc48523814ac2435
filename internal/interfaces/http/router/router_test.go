package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, body)
	}
}

func header(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(name, "applied")
		c.Next()
	}
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func migrationGroup() *DomainGroup {
	return NewDomainGroup("/migrations").
		GET("", respond("list")).
		POST("/:source", respond("start")).
		DELETE("/lock", respond("unlock")).
		GET("/:id", respond("get")).
		GET("/:id/report", respond("report"))
}

func TestRouter_Setup(t *testing.T) {
	engine := gin.New()
	engine.GET("/health", respond("healthy"))

	routes := NewRouter(engine).
		Use(header("X-API-Group")).
		Register(migrationGroup()).
		Setup()

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/v1/migrations", "list"},
		{http.MethodPost, "/api/v1/migrations/jobnimbus", "start"},
		{http.MethodDelete, "/api/v1/migrations/lock", "unlock"},
		{http.MethodGet, "/api/v1/migrations/abc", "get"},
		{http.MethodGet, "/api/v1/migrations/abc/report", "report"},
	}
	for _, tt := range tests {
		w := serve(engine, tt.method, tt.path)
		assert.Equal(t, http.StatusOK, w.Code, "%s %s", tt.method, tt.path)
		assert.Equal(t, tt.body, w.Body.String())
		assert.Equal(t, "applied", w.Header().Get("X-API-Group"))
	}

	t.Run("lists only api routes in path order", func(t *testing.T) {
		require.Len(t, routes, 5)
		assert.Equal(t, "GET /api/v1/migrations", routes[0].String())
		assert.Equal(t, "DELETE /api/v1/migrations/lock", routes[len(routes)-1].String())
		for _, r := range routes {
			assert.NotEqual(t, "/health", r.Path)
		}
	})

	t.Run("api middleware not applied outside the api group", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/health")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-API-Group"))
	})
}

func TestDomainGroup_Middleware(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Register(migrationGroup().Use(header("X-Migration-Group"))).
		Register(NewDomainGroup("/other").GET("", respond("other"))).
		Setup()

	w := serve(engine, http.MethodGet, "/api/v1/migrations")
	assert.Equal(t, "applied", w.Header().Get("X-Migration-Group"))

	w = serve(engine, http.MethodGet, "/api/v1/other")
	assert.Equal(t, "other", w.Body.String())
	assert.Empty(t, w.Header().Get("X-Migration-Group"), "group middleware stays within its group")
}

package handler

import (
	"go/ast"
	"go/parser"
	"go/token"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/crmigrate/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	routerAnnotation = regexp.MustCompile(`@Router\s+(\S+)\s+\[(\w+)\]`)
	swagPathParam    = regexp.MustCompile(`\{(\w+)\}`)
)

// annotatedRoutes reads the @Router annotations of the handlers in file
func annotatedRoutes(t *testing.T, file string) map[string]string {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), file, nil, parser.ParseComments)
	require.NoError(t, err)

	routes := make(map[string]string)
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Doc == nil || !fn.Name.IsExported() || fn.Recv == nil {
			continue
		}
		m := routerAnnotation.FindStringSubmatch(fn.Doc.Text())
		if !assert.NotNil(t, m, "%s has no @Router annotation", fn.Name.Name) {
			continue
		}
		path := router.APIPrefix + swagPathParam.ReplaceAllString(m[1], ":$1")
		routes[strings.ToUpper(m[2])+" "+path] = fn.Name.Name
	}
	return routes
}

func TestMigrationRoutes_MatchAnnotations(t *testing.T) {
	gin.SetMode(gin.TestMode)

	documented := annotatedRoutes(t, "migration.go")
	registered := router.NewRouter(gin.New()).
		Register(MigrationRoutes(&MigrationHandler{})).
		Setup()

	require.Len(t, documented, len(registered))
	for _, route := range registered {
		assert.Contains(t, documented, route.String(), "route is not documented")
	}
	assert.Contains(t, documented, http.MethodDelete+" "+router.APIPrefix+"/migrations/lock")
}

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// ListRunsParams defines parameters for ListRuns.
type ListRunsParams struct {
	Flow  *string `form:"flow,omitempty" json:"flow,omitempty"`
	Limit *int    `form:"limit,omitempty" json:"limit,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /flows)
	ListFlows(ctx echo.Context) error
	// (GET /flows/{name})
	GetFlow(ctx echo.Context, name string) error
	// (POST /flows/{name}/runs)
	RunFlow(ctx echo.Context, name string) error
	// (GET /runs)
	ListRuns(ctx echo.Context, params ListRunsParams) error
	// (GET /runs/{id})
	GetRun(ctx echo.Context, id string) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// ListFlows converts echo context to params.
func (w *ServerInterfaceWrapper) ListFlows(ctx echo.Context) error {
	return w.Handler.ListFlows(ctx)
}

// GetFlow converts echo context to params.
func (w *ServerInterfaceWrapper) GetFlow(ctx echo.Context) error {
	var name string
	if err := bindPath("name", ctx.Param("name"), &name); err != nil {
		return err
	}
	return w.Handler.GetFlow(ctx, name)
}

// RunFlow converts echo context to params.
func (w *ServerInterfaceWrapper) RunFlow(ctx echo.Context) error {
	var name string
	if err := bindPath("name", ctx.Param("name"), &name); err != nil {
		return err
	}
	return w.Handler.RunFlow(ctx, name)
}

// ListRuns converts echo context to params.
func (w *ServerInterfaceWrapper) ListRuns(ctx echo.Context) error {
	var params ListRunsParams

	if err := runtime.BindQueryParameter("form", true, false, "flow", ctx.QueryParams(), &params.Flow); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter flow: "+err.Error())
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", ctx.QueryParams(), &params.Limit); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter limit: "+err.Error())
	}
	return w.Handler.ListRuns(ctx, params)
}

// GetRun converts echo context to params.
func (w *ServerInterfaceWrapper) GetRun(ctx echo.Context) error {
	var id string
	if err := bindPath("id", ctx.Param("id"), &id); err != nil {
		return err
	}
	return w.Handler.GetRun(ctx, id)
}

func bindPath(name, value string, dest *string) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, value, dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter "+name+": "+err.Error())
	}
	return nil
}

// EchoRouter is the subset of echo routing used by RegisterHandlers, so
// both *echo.Echo and *echo.Group can be passed.
type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.GET("/flows", wrapper.ListFlows)
	router.GET("/flows/:name", wrapper.GetFlow)
	router.POST("/flows/:name/runs", wrapper.RunFlow)
	router.GET("/runs", wrapper.ListRuns)
	router.GET("/runs/:id", wrapper.GetRun)
}

// DocsConfig configures the OpenAPI and Swagger UI routes.
type DocsConfig struct {
	Issuer   string
	ClientID string
}

// Mount registers the health and documentation routes on e and the API
// routes under /api/v1, guarded by middleware.
func Mount(e *echo.Echo, h *Handler, docs DocsConfig, middleware ...echo.MiddlewareFunc) {
	e.GET("/healthz", h.HandleHealth)
	e.GET("/readyz", h.HandleReady)
	e.GET("/openapi.yaml", SpecHandler(docs.Issuer))
	e.GET("/docs", SwaggerHandler(docs.ClientID))
	e.GET("/docs/oauth2-redirect.html", OAuth2RedirectHandler)

	RegisterHandlers(e.Group("/api/v1", middleware...), h)
}

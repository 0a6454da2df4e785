// Package reference loads and describes the reference organization set
package reference

import (
	"mime"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/hollomancer/sbir-analytics-sub004/internal/ingest"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
)

// Register registers reference routes
func Register(g *echo.Group) {
	g.GET("", Report)
	g.PUT("", Load)
}

// Report returns the build report of the current reference set
func Report(c echo.Context) error {
	_, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	report := svc.Report()
	if report == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no reference set is loaded")
	}
	return c.JSON(http.StatusOK, report)
}

// Load replaces the reference set. The body is a reference table as text/csv
// or a JSON array of organizations.
func Load(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "reference.Load")
	defer span.End()

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var orgs []models.OrganizationRef
	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if mediaType == "text/csv" {
		if orgs, err = ingest.ReadReferences(ctx, c.Request().Body); err != nil {
			return err
		}
	} else if err := c.Bind(&orgs); err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	report, err := svc.LoadReferences(ctx, orgs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

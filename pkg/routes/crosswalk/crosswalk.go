// Package crosswalk serves the canonical organization crosswalk
package crosswalk

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	cw "github.com/hollomancer/sbir-analytics-sub004/pkg/crosswalk"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/utils"
)

// MIMEJSONLines is the snapshot format served by export and read by import
const MIMEJSONLines = "application/x-ndjson"

type AliasRequest struct {
	ID string `param:"id" validate:"required"`
	resolver.AliasRequest
}

type MergeRequest struct {
	ID string `param:"id" validate:"required"`
	models.CrosswalkRecord
}

type ListResponse struct {
	Records []*models.CrosswalkRecord `json:"records"`
	Total   int                       `json:"total"`
}

type SnapshotResponse struct {
	Records int `json:"records"`
}

// Register registers crosswalk routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", AddOrMerge)
	g.GET("/lookup", Lookup)
	g.GET("/export", Export)
	g.POST("/import", Import)
	g.POST("/snapshot", SaveSnapshot)
	g.POST("/snapshot/load", LoadSnapshot)
	g.POST("/acquisitions", Acquisition)
	g.GET("/:id", Get)
	g.DELETE("/:id", Remove)
	g.POST("/:id/merge", MergeInto)
	g.POST("/:id/aliases", AddAlias)
}

// List returns every canonical record
func List(c echo.Context) error {
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records := svc.Records(ctx)
	return c.JSON(http.StatusOK, ListResponse{Records: records, Total: len(records)})
}

func Get(c echo.Context) error {
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rec, err := svc.GetRecord(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// AddOrMerge stores a record, merging it into the record owning one of its identifiers
func AddOrMerge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "crosswalk.AddOrMerge")
	defer span.End()

	var rec models.CrosswalkRecord
	if err := c.Bind(&rec); err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	outcome, err := svc.AddOrMerge(ctx, rec)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, outcome)
}

func MergeInto(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "crosswalk.MergeInto")
	defer span.End()

	req, err := utils.BindRequest[MergeRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	outcome, err := svc.MergeInto(ctx, req.ID, req.CrosswalkRecord)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outcome)
}

func AddAlias(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "crosswalk.AddAlias")
	defer span.End()

	req, err := utils.BindRequest[AliasRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rec, added, err := svc.AddAlias(ctx, req.ID, req.AliasRequest)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	return c.JSON(status, rec)
}

func Remove(c echo.Context) error {
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.RemoveRecord(ctx, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func Acquisition(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "crosswalk.Acquisition")
	defer span.End()

	req, err := utils.BindRequest[resolver.AcquisitionRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rec, err := svc.HandleAcquisition(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// Lookup resolves a query by uei, cage, duns and then name
func Lookup(c echo.Context) error {
	q := cw.Query{
		UEI:  c.QueryParam("uei"),
		CAGE: c.QueryParam("cage"),
		DUNS: c.QueryParam("duns"),
		Name: c.QueryParam("name"),
	}

	var threshold float64
	if raw := c.QueryParam("threshold"); raw != "" {
		var err error
		if threshold, err = strconv.ParseFloat(raw, 64); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid threshold %q", raw)
		}
		if err := utils.ValidateValue(threshold, "gte=0,lte=1"); err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	res, err := svc.Lookup(ctx, q, threshold)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Export streams the crosswalk as JSON lines
func Export(c echo.Context) error {
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, MIMEJSONLines)
	res.WriteHeader(http.StatusOK)
	if err := svc.Export(ctx, res); err != nil {
		_, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
		if logger != nil {
			logger.WithContext(ctx).WithError(err).Error("Failed to stream crosswalk export")
		}
	}
	return nil
}

// Import replaces the crosswalk with the JSON lines in the body
func Import(c echo.Context) error {
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	n, err := svc.Import(ctx, c.Request().Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnapshotResponse{Records: n})
}

func SaveSnapshot(c echo.Context) error {
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.SaveSnapshot(ctx); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnapshotResponse{Records: svc.Crosswalk().Len()})
}

func LoadSnapshot(c echo.Context) error {
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	n, err := svc.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnapshotResponse{Records: n})
}

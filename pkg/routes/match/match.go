// Package match serves single and batch matching against the loaded reference set
package match

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/hollomancer/sbir-analytics-sub004/internal/context"
	"github.com/hollomancer/sbir-analytics-sub004/internal/ingest"
	"github.com/hollomancer/sbir-analytics-sub004/internal/middleware"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/utils"
)

const MIMETextCSV = "text/csv"

// MatchResponse is one classified record together with its enrichment
type MatchResponse struct {
	models.MatchResult
	Enriched matching.EnrichedRecord `json:"enriched"`
}

// Register registers match routes
func Register(g *echo.Group) {
	g.POST("", Match)
	g.POST("/batch", Batch)
}

// Match resolves one record
func Match(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "match.Match")
	defer span.End()

	record, err := utils.BindRequest[models.InputRecord](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result := svc.Match(ctx, record)
	enriched := matching.Enrich([]models.InputRecord{record}, []models.MatchResult{result})

	return c.JSON(http.StatusOK, MatchResponse{MatchResult: result, Enriched: enriched[0]})
}

// Batch matches many records. A text/csv body is read as an input table and
// answered with the enriched table; options then come from the query string.
// Any other body is a JSON BatchRequest answered with a JSON BatchResponse.
func Batch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "match.Batch")
	defer span.End()

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if !isCSV(c.Request().Header.Get(echo.HeaderContentType)) {
		req, err := utils.BindRequest[resolver.BatchRequest](c)
		if err != nil {
			return err
		}
		if req.Source == "" {
			req.Source = context.GetSource(ctx)
		}

		resp, err := svc.RunBatch(ctx, req)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}

	records, err := ingest.ReadRecords(ctx, c.Request().Body)
	if err != nil {
		return err
	}

	resp, err := svc.RunBatch(ctx, resolver.BatchRequest{
		Records:            records,
		Source:             context.GetSource(ctx),
		QueueReview:        queryBool(c, "queue_review"),
		RecordAutoAccepted: queryBool(c, "record_auto_accepted"),
		Fold:               queryBool(c, "fold"),
	})
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, MIMETextCSV)
	res.Header().Set(middleware.HeaderRunID, resp.Summary.RunID)
	res.WriteHeader(http.StatusOK)
	if err := ingest.WriteEnriched(res, matching.Enrich(records, resp.Results)); err != nil {
		// the status is already sent
		_, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
		if logger != nil {
			logger.WithContext(ctx).WithError(err).WithField("run_id", resp.Summary.RunID).Error("Failed to write enriched CSV")
		}
	}
	return nil
}

func isCSV(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == MIMETextCSV
}

func queryBool(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

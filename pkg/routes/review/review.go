// Package review serves the fuzzy_candidate review queue
package review

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/utils"
)

// HeaderReviewer names the person resolving a candidate when the body does not
const HeaderReviewer = "X-Reviewer"

type ApproveRequest struct {
	ID       string `param:"id" validate:"required"`
	RefID    string `json:"ref_id" validate:"required"`
	Reviewer string `json:"reviewer,omitempty"`
}

type RejectRequest struct {
	ID       string `param:"id" validate:"required"`
	Reviewer string `json:"reviewer,omitempty"`
}

// Register registers review routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/counts", Counts)
	g.GET("/:id", Get)
	g.POST("/:id/approve", Approve)
	g.POST("/:id/reject", Reject)
}

// List returns pending candidates, optionally for one run
func List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid limit %q", raw)
		}
	}

	ctx := c.Request().Context()
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, err := svc.ListReviews(ctx, c.QueryParam("run_id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidates)
}

func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := svc.GetReview(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidate)
}

func Counts(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	counts, err := svc.ReviewCounts(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counts)
}

// Approve accepts one of the candidate's references and folds the record into the crosswalk
func Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review.Approve")
	defer span.End()

	req, err := utils.BindRequest[ApproveRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := svc.ApproveReview(ctx, req.ID, req.RefID, reviewer(c, req.Reviewer))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidate)
}

func Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review.Reject")
	defer span.End()

	req, err := utils.BindRequest[RejectRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := svc.RejectReview(ctx, req.ID, reviewer(c, req.Reviewer))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidate)
}

func reviewer(c echo.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.Request().Header.Get(HeaderReviewer)
}

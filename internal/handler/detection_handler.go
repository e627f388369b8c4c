package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/output"
	"github.com/jengzang/ais-anomaly-go/internal/params"
	"github.com/jengzang/ais-anomaly-go/internal/service"
	"github.com/jengzang/ais-anomaly-go/pkg/response"
)

// DetectionHandler handles HTTP requests for anomaly detection
type DetectionHandler struct {
	service *service.DetectionService
	loc     *time.Location
}

// NewDetectionHandler creates a new detection handler. loc is the zone used
// for inline records that carry no local timestamp.
func NewDetectionHandler(svc *service.DetectionService, loc *time.Location) *DetectionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DetectionHandler{service: svc, loc: loc}
}

// DetectOverspeed runs the overspeed rule
// POST /api/v1/detections/overspeed
func (h *DetectionHandler) DetectOverspeed(c *gin.Context) {
	h.detect(c, models.AnomalyOverspeed)
}

// DetectSpeedAbnormality runs the trajectory speed abnormality rule
// POST /api/v1/detections/speed-abnormality
func (h *DetectionHandler) DetectSpeedAbnormality(c *gin.Context) {
	h.detect(c, models.AnomalySpeedAbnormality)
}

// Segment returns the trajectories of the selected records
// POST /api/v1/trajectories
func (h *DetectionHandler) Segment(c *gin.Context) {
	v, svc, ok := h.bind(c, models.AnomalySpeedAbnormality)
	if !ok {
		return
	}

	run, err := svc.Segment(c.Request.Context(), v)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, newSegmentResponse(run))
}

func (h *DetectionHandler) detect(c *gin.Context, anomalyType string) {
	v, svc, ok := h.bind(c, anomalyType)
	if !ok {
		return
	}

	run, err := svc.Detect(c.Request.Context(), v)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if c.Query("format") == "csv" && !run.Skipped {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="`+output.FileName(run.AnomalyType, run.ID)+`"`)
		c.Status(http.StatusOK)
		if err := service.WriteCSV(c.Writer, run); err != nil {
			_ = c.Error(err)
		}
		return
	}

	response.Success(c, newRunResponse(run))
}

// bind decodes and validates the request body. The anomaly type comes from
// the route, not the body.
func (h *DetectionHandler) bind(c *gin.Context, anomalyType string) (params.Validated, *service.DetectionService, bool) {
	var req DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return params.Validated{}, nil, false
	}
	req.AnomalyType = anomalyType

	v, err := params.Validate(req.Params)
	errs := validateRecords(req.Records)
	if err != nil {
		var verrs *apperr.ValidationErrors
		if !errors.As(err, &verrs) {
			response.FromError(c, err)
			return params.Validated{}, nil, false
		}
		errs.Errors = append(verrs.Errors, errs.Errors...)
	}
	if err := errs.ErrOrNil(); err != nil {
		response.FromError(c, err)
		return params.Validated{}, nil, false
	}

	svc := h.service
	if len(req.Records) > 0 {
		svc = svc.WithSource(service.MemorySource(toRecords(req.Records, h.loc)))
	}
	return v, svc, true
}

// ListVesselClasses returns the supported vessel classes and anomaly types
// GET /api/v1/vessel-classes
func (h *DetectionHandler) ListVesselClasses(c *gin.Context) {
	response.Success(c, gin.H{
		"vessel_classes": params.VesselClasses(),
		"anomaly_types":  models.AnomalyTypes(),
	})
}

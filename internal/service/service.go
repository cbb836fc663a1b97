package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"massar-backend/internal/components/assert"
	"massar-backend/internal/components/telemetry"
	"massar-backend/internal/scrapers/massar"
)

const (
	report_fetch_grades   = "fetch-grades"
	report_make_snapshot  = "fetch-grades.make-snapshot"
	report_write_response = "write-response"
)

// GradesAPI runs the whole report pipeline for one account.
//
// note: fault injection point
type GradesAPI interface {
	GetGradeReport(ctx context.Context, username, password, academicYear, sessionId string) (massar.GradeReport, error)
}

// SnapshotAPI records reports that were successfully fetched.
//
// note: fault injection point
type SnapshotAPI interface {
	MakeSnapshot(ctx context.Context, username string, query massar.ReportQuery, report massar.GradeReport) error
}

type serviceConfig struct {
	snapshots SnapshotAPI
	tel       telemetry.API
}

type Option func(cfg *serviceConfig)

// WithSnapshots records every successfully fetched report.
func WithSnapshots(snapshots SnapshotAPI) Option {
	return func(cfg *serviceConfig) {
		cfg.snapshots = snapshots
	}
}

func WithCustomTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *serviceConfig) {
		cfg.tel = tel
	}
}

// GradesService serves the report pipeline over http.
type GradesService struct {
	grades    GradesAPI
	snapshots SnapshotAPI
	tel       telemetry.API
}

func NewGradesService(grades GradesAPI, options ...Option) GradesService {
	assert.NotNil(grades, "grades API implementation")

	cfg := serviceConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	service := GradesService{
		grades:    grades,
		snapshots: cfg.snapshots,
		tel:       telemetry.SlogAPI{},
	}
	if cfg.tel != nil {
		service.tel = cfg.tel
	}
	service.tel = telemetry.NewScopedAPI("service", service.tel)

	return service
}

// Handler routes /api/fetch-grades and /api/schema.
func (s GradesService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/fetch-grades", s.fetchGrades)
	mux.HandleFunc("/api/schema", s.schema)
	return mux
}

type FetchGradesRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Semester string `json:"semester"`
	Year     string `json:"year"`
}

type FetchGradesResponse struct {
	Report massar.GradeReport `json:"report"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s GradesService) writeJson(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		s.tel.ReportWarning(report_write_response, err)
	}
}

// StatusOf maps a pipeline error to the status code returned to clients, a
// rejected login must look different from an unreachable portal.
func StatusOf(err error) int {
	kind, ok := massar.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case massar.LoginRejected:
		return http.StatusUnauthorized
	case massar.TokenMissing, massar.EmptyResponse, massar.UnexpectedShape:
		return http.StatusBadGateway
	case massar.NetworkError:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s GradesService) fetchGrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeJson(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	var req FetchGradesRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		s.writeJson(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	req.Semester = strings.TrimSpace(req.Semester)
	req.Year = strings.TrimSpace(req.Year)
	if strings.TrimSpace(req.Username) == "" || req.Password == "" || req.Semester == "" || req.Year == "" {
		s.writeJson(w, http.StatusBadRequest, ErrorResponse{Error: "missing required fields"})
		return
	}

	ctx := r.Context()
	report, err := s.grades.GetGradeReport(ctx, req.Username, req.Password, req.Year, req.Semester)
	if err != nil {
		status := StatusOf(err)
		res := ErrorResponse{Error: err.Error()}
		var kind massar.ErrorKind
		if errors.As(err, &kind) {
			res.Kind = kind.String()
		}
		if status == http.StatusInternalServerError {
			s.tel.ReportBroken(report_fetch_grades, err)
		} else {
			s.tel.ReportDebug("fetch grades failed", res.Kind)
		}
		s.writeJson(w, status, res)
		return
	}

	if report.Degraded() {
		s.tel.ReportWarning(
			report_fetch_grades,
			"degraded report",
			telemetry.KV{Key: "missing", Value: report.MissingSections()},
		)
	}

	if s.snapshots != nil {
		query := massar.ReportQuery{AcademicYear: req.Year, SessionId: req.Semester}
		err = s.snapshots.MakeSnapshot(ctx, req.Username, query, report)
		if err != nil {
			s.tel.ReportWarning(report_make_snapshot, err)
		}
	}

	s.writeJson(w, http.StatusOK, FetchGradesResponse{Report: report})
}

func (s GradesService) schema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.writeJson(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	schema, err := ReportSchema()
	if err != nil {
		s.tel.ReportBroken(report_write_response, err)
		s.writeJson(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to generate schema"})
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.Write(schema)
}

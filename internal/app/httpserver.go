package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kibuli/schooladmin/internal/db"
	"github.com/kibuli/schooladmin/internal/engine"
	"github.com/kibuli/schooladmin/internal/export"
	"github.com/kibuli/schooladmin/internal/metrics"
	"github.com/kibuli/schooladmin/internal/models"
)

// Server is the operational HTTP surface: health, metrics and the JSON API
// that drives the result engine. The wider school CRUD lives elsewhere.
type Server struct {
	srv *http.Server
	log *zap.Logger

	database    *sql.DB
	marks       *db.MarkStore
	assignments *db.AssignmentStore
	formulas    *db.FormulaStore
	results     *db.ResultStore
	roster      *db.RosterStore
	composer    *engine.Composer
}

type Deps struct {
	DB          *sql.DB
	Marks       *db.MarkStore
	Assignments *db.AssignmentStore
	Formulas    *db.FormulaStore
	Results     *db.ResultStore
	Roster      *db.RosterStore
	Composer    *engine.Composer
	Log         *zap.Logger
}

func StartHTTP(ctx context.Context, addr string, deps Deps) *Server {
	s := &Server{
		log:         deps.Log,
		database:    deps.DB,
		marks:       deps.Marks,
		assignments: deps.Assignments,
		formulas:    deps.Formulas,
		results:     deps.Results,
		roster:      deps.Roster,
		composer:    deps.Composer,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/marks", s.handleRecordMark)
	mux.HandleFunc("GET /api/marks", s.handleListMarks)
	mux.HandleFunc("POST /api/assignments", s.handleCreateAssignment)
	mux.HandleFunc("POST /api/formulas", s.handleCreateFormula)
	mux.HandleFunc("GET /api/formulas", s.handleListFormulas)
	mux.HandleFunc("POST /api/results/compute", s.handleComputeStudent)
	mux.HandleFunc("POST /api/results/compute-class", s.handleComputeClass)
	mux.HandleFunc("GET /api/results", s.handleGetResult)
	mux.HandleFunc("GET /api/results/sheet", s.handleResultSheet)

	s.srv = &http.Server{Addr: addr, Handler: mux}

	go func() { _ = s.srv.ListenAndServe() }()
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shCtx)
	}()
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	if err := s.database.PingContext(ctx); err != nil {
		http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	metrics.ObserveDBPing(time.Since(t0))
	_, _ = w.Write([]byte("ok"))
}

type markRequest struct {
	AssignmentID int64    `json:"assignment_id"`
	StudentID    int64    `json:"student_id"`
	TestType     string   `json:"test_type"`
	TestDate     string   `json:"test_date"` // 2006-01-02
	Score        float64  `json:"score"`
	MaxScore     *float64 `json:"max_score"`
	Weight       *float64 `json:"weight"`
	Remarks      string   `json:"remarks"`
	EnteredBy    int64    `json:"entered_by"`
}

func (s *Server) handleRecordMark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	testDate, err := time.Parse("2006-01-02", req.TestDate)
	if err != nil {
		http.Error(w, "bad test_date: "+err.Error(), http.StatusBadRequest)
		return
	}
	m := models.ExaminationMark{
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
		TestType:     req.TestType,
		TestDate:     testDate,
		Score:        req.Score,
		MaxScore:     100, // schema default
		Weight:       1,
		Remarks:      req.Remarks,
		EnteredBy:    req.EnteredBy,
	}
	if req.MaxScore != nil {
		m.MaxScore = *req.MaxScore
	}
	if req.Weight != nil {
		m.Weight = *req.Weight
	}
	saved, err := s.marks.RecordMark(r.Context(), m)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListMarks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	studentID, err1 := strconv.ParseInt(q.Get("student_id"), 10, 64)
	subjectID, err2 := strconv.ParseInt(q.Get("subject_id"), 10, 64)
	if err1 != nil || err2 != nil || q.Get("academic_year") == "" || q.Get("term") == "" {
		http.Error(w, "student_id, subject_id, academic_year and term are required", http.StatusBadRequest)
		return
	}
	out, err := s.marks.ListMarks(r.Context(), studentID, subjectID, q.Get("academic_year"), q.Get("term"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var a models.TeacherAssignment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	saved, err := s.assignments.Create(r.Context(), a)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleCreateFormula(w http.ResponseWriter, r *http.Request) {
	var f models.ResultFormula
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	saved, err := s.formulas.Create(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListFormulas(w http.ResponseWriter, r *http.Request) {
	out, err := s.formulas.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

type computeRequest struct {
	StudentID    int64  `json:"student_id"`
	ClassID      int64  `json:"class_id"`
	AcademicYear string `json:"academic_year"`
	Term         string `json:"term"`
	Formula      string `json:"formula"`
	Recompute    bool   `json:"recompute"`
	IssuedBy     *int64 `json:"issued_by"`
}

func (s *Server) handleComputeStudent(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.composer.ComputeStudent(r.Context(), req.StudentID, req.AcademicYear, req.Term,
		engine.ComputeOptions{FormulaName: req.Formula, Recompute: req.Recompute, IssuedBy: req.IssuedBy})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleComputeClass(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	report, err := s.composer.ComputeClass(r.Context(), req.ClassID, req.AcademicYear, req.Term,
		engine.ClassComputeOptions{
			ComputeOptions: engine.ComputeOptions{FormulaName: req.Formula, Recompute: req.Recompute, IssuedBy: req.IssuedBy},
		})
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Per-student failures ride along as strings; a batch never 500s over
	// one student.
	type outcome struct {
		StudentID int64                 `json:"student_id"`
		Result    *models.StudentResult `json:"result,omitempty"`
		Error     string                `json:"error,omitempty"`
	}
	outcomes := make([]outcome, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		oc := outcome{StudentID: o.StudentID, Result: o.Result}
		if o.Err != nil {
			oc.Error = o.Err.Error()
		}
		outcomes = append(outcomes, oc)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"class_id":      report.ClassID,
		"academic_year": report.AcademicYear,
		"term":          report.Term,
		"failed":        report.Failed(),
		"outcomes":      outcomes,
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	studentID, err := strconv.ParseInt(q.Get("student_id"), 10, 64)
	if err != nil || q.Get("academic_year") == "" || q.Get("term") == "" {
		http.Error(w, "student_id, academic_year and term are required", http.StatusBadRequest)
		return
	}
	res, details, err := s.results.GetResult(r.Context(), studentID, q.Get("academic_year"), q.Get("term"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res == nil {
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": res, "details": details})
}

func (s *Server) handleResultSheet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	classID, err := strconv.ParseInt(q.Get("class_id"), 10, 64)
	if err != nil || q.Get("academic_year") == "" || q.Get("term") == "" {
		http.Error(w, "class_id, academic_year and term are required", http.StatusBadRequest)
		return
	}
	year, term := q.Get("academic_year"), q.Get("term")

	class, err := s.roster.ClassByID(r.Context(), classID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if class == nil {
		http.Error(w, "class not found", http.StatusNotFound)
		return
	}
	subjects, err := s.roster.SubjectsOfClass(r.Context(), classID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	students, err := s.roster.StudentsOfClass(r.Context(), classID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data := export.ClassResults{
		ClassName:    class.Name,
		AcademicYear: year,
		Term:         term,
		Subjects:     subjects,
	}
	for _, st := range students {
		res, details, err := s.results.GetResult(r.Context(), st.ID, year, term)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if res == nil {
			continue // unpublished students are simply absent from the sheet
		}
		data.Students = append(data.Students, export.StudentRow{
			StudentName:     st.FullName,
			AdmissionNumber: st.AdmissionNumber,
			Result:          *res,
			Details:         details,
		})
	}

	f, err := export.BuildClassWorkbook(data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+export.BuildResultSheetFilename(class.Name, year, term)+`"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		valErr  *engine.ValidationError
		cflErr  *engine.ConflictError
		cfgErr  *engine.ConfigurationError
		dataErr *engine.InsufficientDataError
	)
	switch {
	case errors.As(err, &valErr):
		http.Error(w, valErr.Error(), http.StatusBadRequest)
	case errors.As(err, &cflErr):
		http.Error(w, cflErr.Error(), http.StatusConflict)
	case errors.As(err, &cfgErr):
		http.Error(w, cfgErr.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &dataErr):
		http.Error(w, dataErr.Error(), http.StatusUnprocessableEntity)
	default:
		s.log.Error("internal error", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

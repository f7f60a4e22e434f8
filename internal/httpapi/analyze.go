package httpapi

import (
	"errors"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ent0n29/cfdbot/internal/observability"
	"github.com/ent0n29/cfdbot/internal/pressure"
)

const (
	analysisIDHeader = "X-Analysis-ID"
	uploadField      = "file"
	// Multipart parts beyond this stay on disk while parsing.
	multipartMemory = 8 << 20
)

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Analysis.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Image exceeds the upload limit")
			return
		}
		respondError(w, http.StatusBadRequest, "no_file", "No file provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if s.emptyFilePart(r) {
			respondError(w, http.StatusBadRequest, "no_file_selected", "No file selected")
			return
		}
		respondError(w, http.StatusBadRequest, "no_file", "No file provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "no_file_selected", "No file selected")
		return
	}

	analysisID, err := gonanoid.New()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	logger := s.logger.With("analysis_id", analysisID, "filename", header.Filename)

	report, err := s.analyzer.Analyze(r.Context(), file)
	switch {
	case errors.Is(err, pressure.ErrEmptyImage), errors.Is(err, pressure.ErrInvalidImage):
		logger.Info("image rejected", "error", err)
		respondError(w, http.StatusBadRequest, "invalid_image", "Invalid image file")
		return
	case err != nil:
		logger.Error("image analysis failed", "error", err)
		respondError(w, http.StatusInternalServerError, "analysis_failed", err.Error())
		return
	}

	if s.metrics != nil {
		severity := string(report.Severity)
		if severity == "" {
			severity = "none"
		}
		s.metrics.ObserveStage(observability.StageAnalysisDecode, report.Timings.Decode)
		s.metrics.ObserveStage(observability.StageAnalysisCompute, report.Timings.Compute)
		s.metrics.ObserveAnalysis(severity, report.Timings.Decode+report.Timings.Compute)
	}
	logger.Info("image analyzed",
		"width", report.Width,
		"height", report.Height,
		"points", len(report.PressureData),
		"severity", string(report.Severity),
		"decode_ms", report.Timings.Decode.Milliseconds(),
		"compute_ms", report.Timings.Compute.Milliseconds(),
	)

	w.Header().Set(analysisIDHeader, analysisID)
	respondJSON(w, http.StatusOK, report)
}

// emptyFilePart reports whether the form carried a "file" part with an empty
// filename. The multipart reader files such parts under values, not files.
func (s *Server) emptyFilePart(r *http.Request) bool {
	if r.MultipartForm == nil {
		return false
	}
	_, ok := r.MultipartForm.Value[uploadField]
	return ok
}

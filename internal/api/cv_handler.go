package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"talent-match/internal/cv"
	"talent-match/internal/ingest"
)

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".txt":  true,
}

var allowedSources = map[string]bool{
	ingest.SourceUpload: true,
	ingest.SourceImport: true,
	ingest.SourceAPI:    true,
}

// IngestHandler uploads a resume and merges it into the candidate store
// @Summary Upload and ingest a resume
// @Description Upload a resume (PDF/DOCX/DOC/TXT). The resume is parsed, matched against existing candidates, merged and indexed
// @Tags candidates
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Resume file"
// @Param source formData string false "Source channel (upload, import, api)"
// @Success 200 {object} ingest.Result
// @Failure 400 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Failure 422 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /candidates/ingest [post]
func (a *API) IngestHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(a.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file too large or invalid (max %dMB)", a.maxUploadBytes>>20))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeError(w, http.StatusBadRequest, "invalid file type (supported: PDF, DOCX, DOC, TXT)")
		return
	}

	source := r.FormValue("source")
	if source == "" {
		source = ingest.SourceUpload
	}
	if !allowedSources[source] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid source %q", source))
		return
	}

	data, err := cv.ReadAllLimited(file, a.maxUploadBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file too large (max %dMB)", a.maxUploadBytes>>20))
		return
	}

	res, err := a.pipeline.Ingest(r.Context(), ingest.Document{
		Filename: header.Filename,
		FileKind: strings.TrimPrefix(ext, "."),
		Data:     data,
		Source:   source,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.log.Info("resume ingested",
		zap.String("filename", header.Filename),
		zap.String("candidate_id", res.CandidateID),
		zap.Bool("duplicate", res.WasDuplicateResume),
		zap.Duration("took", time.Since(startTime)))
	writeJSON(w, http.StatusOK, res)
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/classroll/attendancebackend/config"
	"github.com/classroll/attendancebackend/services"
)

// EngineHandler exposes the identity resolution operations: embedding
// generation, nearest-neighbor assignment, cluster bootstrapping and identity
// merge.
type EngineHandler struct {
	Cfg        config.Config
	Embeddings *services.EmbeddingService
	Matcher    *services.MatcherService
	Clusters   *services.ClusterService
	Merges     *services.MergeService
}

type generateRequest struct {
	Model string `json:"model"`
	Force bool   `json:"force"`
}

func (eh *EngineHandler) GenerateEmbedding(w http.ResponseWriter, r *http.Request) {
	cropID, err := parseUintParam(r, "crop_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req generateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Model == "" {
		req.Model = config.DefaultEmbeddingModel
	}

	embedding, err := eh.Embeddings.Generate(r.Context(), cropID, req.Model, req.Force)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, embedding)
}

type assignRequest struct {
	Model     string   `json:"model"`
	K         *int     `json:"k"`
	Threshold *float32 `json:"threshold"`
	UseVoting *bool    `json:"use_voting"`
}

// params fills the unset fields from the configured defaults
func (req *assignRequest) params(cfg config.Config) services.AssignParams {
	params := services.AssignParams{
		Model:     req.Model,
		K:         cfg.DefaultK,
		Threshold: cfg.DefaultAssignThreshold,
		UseVoting: cfg.DefaultUseVoting,
	}
	if params.Model == "" {
		params.Model = config.DefaultEmbeddingModel
	}
	if req.K != nil {
		params.K = *req.K
	}
	if req.Threshold != nil {
		params.Threshold = *req.Threshold
	}
	if req.UseVoting != nil {
		params.UseVoting = *req.UseVoting
	}
	return params
}

func (eh *EngineHandler) AssignCrop(w http.ResponseWriter, r *http.Request) {
	cropID, err := parseUintParam(r, "crop_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req assignRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := eh.Matcher.Assign(r.Context(), cropID, req.params(eh.Cfg))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type assignAllRequest struct {
	assignRequest
	SessionID uint `json:"session_id"`
	ClassID   uint `json:"class_id"`
}

func (eh *EngineHandler) AssignAll(w http.ResponseWriter, r *http.Request) {
	var req assignAllRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if (req.SessionID == 0) == (req.ClassID == 0) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Exactly one of session_id or class_id must be set"})
		return
	}

	scope := services.AssignScope{SessionID: req.SessionID, ClassID: req.ClassID}
	result, err := eh.Matcher.AssignAll(r.Context(), scope, req.params(eh.Cfg))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type clusterRequest struct {
	Model       string   `json:"model"`
	Threshold   *float32 `json:"threshold"`
	MaxClusters *int     `json:"max_clusters"`
	Force       *bool    `json:"force"`
}

func (eh *EngineHandler) ClusterSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req clusterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	params := services.ClusterParams{
		Model:       req.Model,
		Threshold:   eh.Cfg.DefaultClusterThreshold,
		MaxClusters: eh.Cfg.DefaultMaxClusters,
		Force:       eh.Cfg.DefaultForceClustering,
	}
	if params.Model == "" {
		params.Model = config.DefaultEmbeddingModel
	}
	if req.Threshold != nil {
		params.Threshold = *req.Threshold
	}
	if req.MaxClusters != nil {
		params.MaxClusters = *req.MaxClusters
	}
	if req.Force != nil {
		params.Force = *req.Force
	}

	result, err := eh.Clusters.Cluster(r.Context(), sessionID, params)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type mergeRequest struct {
	SourceStudentID uint `json:"source_student_id" validate:"required,gt=0"`
	TargetStudentID uint `json:"target_student_id" validate:"required,gt=0"`
}

func (eh *EngineHandler) MergeStudents(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := eh.Merges.Merge(r.Context(), req.SourceStudentID, req.TargetStudentID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Suggestions lists unidentified crops of a class with their most likely
// student, for manual review.
func (eh *EngineHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	classID, err := parseUintParam(r, "class_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		model = config.DefaultEmbeddingModel
	}
	k := eh.Cfg.DefaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			k = parsed
		}
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	suggestions, err := eh.Matcher.Suggest(classID, model, k, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

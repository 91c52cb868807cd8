package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"

	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"gorm.io/gorm"
)

// Assignment outcomes. BelowThreshold is an expected steady-state result, not
// a failure: the best candidate stays visible for diagnostics while the crop
// remains unidentified.
const (
	OutcomeAssigned       = "assigned"
	OutcomeBelowThreshold = "below_threshold"
)

// Skip reasons reported by batch assignment.
const (
	ReasonBelowThreshold    = "below_threshold"
	ReasonNoReferences      = "no_labeled_references"
	ReasonClaimedConcurrent = "claimed_concurrently"
)

// AssignParams control one nearest-neighbor assignment.
type AssignParams struct {
	Model     string  `json:"model" validate:"required"`
	K         int     `json:"k" validate:"gte=1"`
	Threshold float32 `json:"threshold" validate:"gt=0,lte=1"`
	UseVoting bool    `json:"use_voting"`
}

func (p AssignParams) validate() error {
	if p.Model == "" {
		return fmt.Errorf("%w: empty model name", ErrModelUnavailable)
	}
	if p.K < 1 {
		return fmt.Errorf("k must be at least 1, got %d", p.K)
	}
	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %f", p.Threshold)
	}
	return nil
}

// AssignmentResult reports the decision for one crop.
type AssignmentResult struct {
	CropID     uint    `json:"crop_id"`
	Outcome    string  `json:"outcome"`
	StudentID  uint    `json:"student_id"`
	Similarity float32 `json:"similarity"`
	VoteCount  int     `json:"vote_count"`
	Neighbors  int     `json:"neighbors"`
}

// UnassignedCrop is one batch item that stayed unidentified, with the reason.
type UnassignedCrop struct {
	CropID     uint    `json:"crop_id"`
	Reason     string  `json:"reason"`
	StudentID  uint    `json:"student_id,omitempty"`
	Similarity float32 `json:"similarity,omitempty"`
}

// BatchAssignResult is the full manifest of a batch assignment run.
type BatchAssignResult struct {
	Assigned   []AssignmentResult `json:"assigned"`
	Unassigned []UnassignedCrop   `json:"unassigned"`
	Params     AssignParams       `json:"params"`
}

// AssignScope selects the crops for a batch run: one session, or every
// session of a class. Exactly one field must be set.
type AssignScope struct {
	SessionID uint `json:"session_id,omitempty"`
	ClassID   uint `json:"class_id,omitempty"`
}

// CropSuggestion is a review hint for an unidentified crop: the student its
// neighbors point to, before anyone commits to the assignment.
type CropSuggestion struct {
	CropID         uint    `json:"crop_id"`
	StudentID      uint    `json:"student_id"`
	StudentName    string  `json:"student_name"`
	VoteCount      int     `json:"vote_count"`
	BestSimilarity float32 `json:"best_similarity"`
}

type cachedIndex struct {
	index       *ReferenceIndex
	refCount    int
	fingerprint uint64
}

// referenceFingerprint folds every (crop, student) pair into one value, so a
// relabeling that leaves the set size unchanged (an identity merge moving
// labeled crops between students) still reads as a different reference set.
// XOR keeps the result independent of row order.
func referenceFingerprint(entries []refEntry) uint64 {
	var fp uint64
	var buf [16]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint64(buf[:8], uint64(e.CropID))
		binary.LittleEndian.PutUint64(buf[8:], uint64(e.StudentID))
		h := fnv.New64a()
		h.Write(buf[:])
		fp ^= h.Sum64()
	}
	return fp
}

// MatcherService assigns unidentified crops to students by nearest-neighbor
// search over the labeled embeddings of the same class and model.
type MatcherService struct {
	cropRepo      repository.FaceCropRepositoryInterface
	studentRepo   repository.StudentRepositoryInterface
	sessionRepo   repository.SessionRepositoryInterface
	embeddingRepo repository.EmbeddingRepositoryInterface

	cacheMu sync.Mutex
	cache   map[string]*cachedIndex
}

// NewMatcherService creates a new matcher service
func NewMatcherService(
	cropRepo repository.FaceCropRepositoryInterface,
	studentRepo repository.StudentRepositoryInterface,
	sessionRepo repository.SessionRepositoryInterface,
	embeddingRepo repository.EmbeddingRepositoryInterface,
) *MatcherService {
	return &MatcherService{
		cropRepo:      cropRepo,
		studentRepo:   studentRepo,
		sessionRepo:   sessionRepo,
		embeddingRepo: embeddingRepo,
		cache:         make(map[string]*cachedIndex),
	}
}

// Assign decides the identity of a single crop. The crop must already have an
// embedding under params.Model; generation is a separate, explicit step. On a
// confident match the crop is assigned; below the threshold the crop is left
// untouched and the best candidate is returned for diagnostics.
func (s *MatcherService) Assign(ctx context.Context, cropID uint, params AssignParams) (*AssignmentResult, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	crop, err := s.cropRepo.GetByID(cropID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCropNotFound
		}
		return nil, err
	}
	if crop.Image == nil || crop.Image.Session == nil {
		return nil, fmt.Errorf("crop %d has no resolvable session", cropID)
	}
	classID := crop.Image.Session.ClassID

	query, err := s.embeddingRepo.GetByCropAndModel(cropID, params.Model)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMissingEmbedding
		}
		return nil, err
	}

	index, err := s.referenceIndex(classID, params.Model)
	if err != nil {
		return nil, err
	}
	if index.Size() == 0 {
		return nil, ErrNoLabeledReferences
	}

	result := s.decide(query.GetEmbedding(), index, cropID, params)
	if result.Outcome != OutcomeAssigned {
		return result, nil
	}

	// the reference set is same-class by construction; re-check before
	// mutating so a stale index can never violate the class invariant
	student, err := s.studentRepo.GetByID(result.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if student.ClassID != classID {
		return nil, ErrCrossClassAssignment
	}

	confidence := result.Similarity
	model := params.Model
	if err := s.cropRepo.Assign(cropID, result.StudentID, models.IdentificationAutomatic, &confidence, &model); err != nil {
		return nil, err
	}
	s.invalidateIndex(classID, params.Model)

	log.Printf("matcher: assigned crop %d to student %d (similarity %.3f, voting=%v)", cropID, result.StudentID, result.Similarity, params.UseVoting)
	return result, nil
}

// AssignAll applies the single-crop algorithm to every unidentified, embedded
// crop in scope. Already-identified crops are never touched, so a re-run is
// safe. The batch never fails on one bad crop: every crop lands either in
// Assigned or in Unassigned with a reason.
func (s *MatcherService) AssignAll(ctx context.Context, scope AssignScope, params AssignParams) (*BatchAssignResult, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	classID, embeddings, err := s.resolveScope(scope, params.Model)
	if err != nil {
		return nil, err
	}

	result := &BatchAssignResult{Params: params}

	index, err := s.referenceIndex(classID, params.Model)
	if err != nil {
		return nil, err
	}
	if index.Size() == 0 {
		for _, embedding := range embeddings {
			result.Unassigned = append(result.Unassigned, UnassignedCrop{
				CropID: embedding.CropID,
				Reason: ReasonNoReferences,
			})
		}
		return result, nil
	}

	assignedAny := false
	for i := range embeddings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embedding := &embeddings[i]
		decision := s.decide(embedding.GetEmbedding(), index, embedding.CropID, params)

		if decision.Outcome != OutcomeAssigned {
			result.Unassigned = append(result.Unassigned, UnassignedCrop{
				CropID:     embedding.CropID,
				Reason:     ReasonBelowThreshold,
				StudentID:  decision.StudentID,
				Similarity: decision.Similarity,
			})
			continue
		}

		// the snapshot was taken at invocation time; only commit if the crop
		// is still unassigned
		confidence := decision.Similarity
		model := params.Model
		applied, err := s.cropRepo.AssignIfUnidentified(embedding.CropID, decision.StudentID, models.IdentificationAutomatic, &confidence, &model)
		if err != nil {
			return nil, err
		}
		if !applied {
			result.Unassigned = append(result.Unassigned, UnassignedCrop{
				CropID: embedding.CropID,
				Reason: ReasonClaimedConcurrent,
			})
			continue
		}
		assignedAny = true
		result.Assigned = append(result.Assigned, *decision)
	}

	if assignedAny {
		s.invalidateIndex(classID, params.Model)
	}

	log.Printf("matcher: batch assigned %d crop(s), %d left unassigned", len(result.Assigned), len(result.Unassigned))
	return result, nil
}

// Suggest lists unidentified embedded crops of a class together with the
// student their neighbors point to, for manual review.
func (s *MatcherService) Suggest(classID uint, model string, k, limit int) ([]CropSuggestion, error) {
	if k < 1 {
		k = 1
	}

	embeddings, err := s.embeddingRepo.ListUnassignedByClass(classID, model)
	if err != nil {
		return nil, err
	}

	index, err := s.referenceIndex(classID, model)
	if err != nil {
		return nil, err
	}
	if index.Size() == 0 {
		return nil, ErrNoLabeledReferences
	}

	var suggestions []CropSuggestion
	for i := range embeddings {
		if limit > 0 && len(suggestions) >= limit {
			break
		}
		neighbors := index.Search(embeddings[i].GetEmbedding(), k)
		candidate, votes, _ := tallyVotes(neighbors)
		if votes == 0 {
			continue
		}

		suggestion := CropSuggestion{
			CropID:    embeddings[i].CropID,
			StudentID: candidate,
			VoteCount: votes,
		}
		for _, n := range neighbors {
			if n.StudentID == candidate && n.Similarity > suggestion.BestSimilarity {
				suggestion.BestSimilarity = n.Similarity
			}
		}
		if student, err := s.studentRepo.GetByID(candidate); err == nil {
			suggestion.StudentName = student.Name
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions, nil
}

// TagManual assigns a crop to a student by hand. The student must belong to
// the same class as the crop's session; a cross-class tag is rejected before
// any mutation.
func (s *MatcherService) TagManual(cropID, studentID uint) error {
	crop, err := s.cropRepo.GetByID(cropID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCropNotFound
		}
		return err
	}
	if crop.Image == nil || crop.Image.Session == nil {
		return fmt.Errorf("crop %d has no resolvable session", cropID)
	}

	student, err := s.studentRepo.GetByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return err
	}
	if student.ClassID != crop.Image.Session.ClassID {
		return ErrCrossClassAssignment
	}

	if err := s.cropRepo.Assign(cropID, studentID, models.IdentificationManual, nil, nil); err != nil {
		return err
	}
	s.invalidateAll()
	return nil
}

// Untag reverts a crop to unidentified
func (s *MatcherService) Untag(cropID uint) error {
	err := s.cropRepo.Unassign(cropID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCropNotFound
		}
		return err
	}
	s.invalidateAll()
	return nil
}

// decide ranks the reference set against the query and applies the selected
// policy. The crop's own embedding is excluded from its neighbors.
func (s *MatcherService) decide(query []float32, index *ReferenceIndex, queryCropID uint, params AssignParams) *AssignmentResult {
	// fetch one extra in case the query crop itself is in the reference set
	neighbors := index.Search(query, params.K+1)
	filtered := neighbors[:0:0]
	for _, n := range neighbors {
		if n.CropID == queryCropID {
			continue
		}
		filtered = append(filtered, n)
	}
	if len(filtered) > params.K {
		filtered = filtered[:params.K]
	}

	result := &AssignmentResult{CropID: queryCropID, Neighbors: len(filtered)}
	if len(filtered) == 0 {
		result.Outcome = OutcomeBelowThreshold
		return result
	}

	if params.UseVoting {
		candidate, votes, meanSim := tallyVotes(filtered)
		result.StudentID = candidate
		result.VoteCount = votes
		result.Similarity = meanSim
	} else {
		result.StudentID = filtered[0].StudentID
		result.VoteCount = 1
		result.Similarity = filtered[0].Similarity
	}

	if result.Similarity >= params.Threshold {
		result.Outcome = OutcomeAssigned
	} else {
		result.Outcome = OutcomeBelowThreshold
	}
	return result
}

// tallyVotes picks the plurality student among the neighbors. Ties fall to
// the higher mean similarity, then to the student appearing first in the
// similarity-ordered neighbor list.
func tallyVotes(neighbors []Neighbor) (studentID uint, votes int, meanSimilarity float32) {
	if len(neighbors) == 0 {
		return 0, 0, 0
	}

	counts := make(map[uint]int)
	sums := make(map[uint]float32)
	firstSeen := make(map[uint]int)
	for i, n := range neighbors {
		counts[n.StudentID]++
		sums[n.StudentID] += n.Similarity
		if _, seen := firstSeen[n.StudentID]; !seen {
			firstSeen[n.StudentID] = i
		}
	}

	var best uint
	bestVotes := -1
	var bestMean float32
	for _, n := range neighbors {
		id := n.StudentID
		count := counts[id]
		mean := sums[id] / float32(count)
		switch {
		case count > bestVotes:
		case count == bestVotes && mean > bestMean:
		case count == bestVotes && mean == bestMean && firstSeen[id] < firstSeen[best]:
		default:
			continue
		}
		best = id
		bestVotes = count
		bestMean = mean
	}

	return best, bestVotes, bestMean
}

// resolveScope loads the unassigned embedded crops for a batch scope and the
// class they belong to
func (s *MatcherService) resolveScope(scope AssignScope, model string) (uint, []models.FaceEmbedding, error) {
	switch {
	case scope.SessionID != 0:
		session, err := s.sessionRepo.GetByID(scope.SessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, nil, ErrSessionNotFound
			}
			return 0, nil, err
		}
		embeddings, err := s.embeddingRepo.ListUnassignedBySession(scope.SessionID, model)
		if err != nil {
			return 0, nil, err
		}
		return session.ClassID, embeddings, nil
	case scope.ClassID != 0:
		embeddings, err := s.embeddingRepo.ListUnassignedByClass(scope.ClassID, model)
		if err != nil {
			return 0, nil, err
		}
		return scope.ClassID, embeddings, nil
	default:
		return 0, nil, fmt.Errorf("assignment scope must name a session or a class")
	}
}

// referenceIndex returns the (possibly cached) reference index for a class
// and model. The cached graph is reused only while the labeled set carries
// the exact crop-to-student mapping it was built from.
func (s *MatcherService) referenceIndex(classID uint, model string) (*ReferenceIndex, error) {
	refs, err := s.embeddingRepo.ListLabeledByClass(classID, model)
	if err != nil {
		return nil, err
	}

	entries := make([]refEntry, 0, len(refs))
	for i := range refs {
		if refs[i].Crop == nil || refs[i].Crop.StudentID == nil {
			continue
		}
		entries = append(entries, refEntry{
			CropID:    refs[i].CropID,
			StudentID: *refs[i].Crop.StudentID,
			Embedding: refs[i].GetEmbedding(),
		})
	}

	key := fmt.Sprintf("%d:%s", classID, model)
	fp := referenceFingerprint(entries)
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if cached, ok := s.cache[key]; ok && cached.refCount == len(entries) && cached.fingerprint == fp {
		return cached.index, nil
	}

	index := NewReferenceIndex(entries)
	s.cache[key] = &cachedIndex{index: index, refCount: len(entries), fingerprint: fp}
	return index, nil
}

func (s *MatcherService) invalidateIndex(classID uint, model string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.cache, fmt.Sprintf("%d:%s", classID, model))
}

func (s *MatcherService) invalidateAll() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache = make(map[string]*cachedIndex)
}

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/classroll/attendancebackend/models"
)

const testModel = "stub"

type matcherFixture struct {
	*fixture
	matcher *MatcherService
	class   *models.Class
	session *models.Session
	image   *models.SessionImage
	alice   *models.Student
	bob     *models.Student
}

func newMatcherFixture(t *testing.T) *matcherFixture {
	f := newFixture(t)
	class := f.createClass("CS101")
	session := f.createSession(class.ID, "Week 1")
	image := f.createImage(session.ID)
	return &matcherFixture{
		fixture: f,
		matcher: NewMatcherService(f.crops, f.students, f.sessions, f.embeddings),
		class:   class,
		session: session,
		image:   image,
		alice:   f.createStudent(class.ID, "Alice"),
		bob:     f.createStudent(class.ID, "Bob"),
	}
}

func defaultParams() AssignParams {
	return AssignParams{Model: testModel, K: 3, Threshold: 0.6}
}

func TestAssignTopOne(t *testing.T) {
	mf := newMatcherFixture(t)
	mf.labeledCrop(mf.image.ID, mf.alice.ID, testModel, unitVec(1, 0))
	mf.labeledCrop(mf.image.ID, mf.bob.ID, testModel, unitVec(0, 1))

	query := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(query.ID, testModel, unitVec(0.95, 0.05))

	result, err := mf.matcher.Assign(context.Background(), query.ID, defaultParams())
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.Outcome != OutcomeAssigned {
		t.Fatalf("outcome = %s, want assigned", result.Outcome)
	}
	if result.StudentID != mf.alice.ID {
		t.Errorf("assigned to student %d, want %d", result.StudentID, mf.alice.ID)
	}

	updated, err := mf.crops.GetByID(query.ID)
	if err != nil {
		t.Fatalf("failed to reload crop: %v", err)
	}
	if updated.StudentID == nil || *updated.StudentID != mf.alice.ID {
		t.Errorf("crop not persisted to student %d", mf.alice.ID)
	}
	if updated.IdentificationSource != models.IdentificationAutomatic {
		t.Errorf("identification source = %s, want automatic", updated.IdentificationSource)
	}
	if updated.Confidence == nil || *updated.Confidence != result.Similarity {
		t.Errorf("stored confidence does not match result similarity")
	}
}

func TestAssignBelowThresholdLeavesCropUntouched(t *testing.T) {
	mf := newMatcherFixture(t)
	mf.labeledCrop(mf.image.ID, mf.alice.ID, testModel, unitVec(1, 0))

	query := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(query.ID, testModel, unitVec(0, 0, 1))

	result, err := mf.matcher.Assign(context.Background(), query.ID, defaultParams())
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.Outcome != OutcomeBelowThreshold {
		t.Fatalf("outcome = %s, want below_threshold", result.Outcome)
	}
	if result.StudentID != mf.alice.ID {
		t.Errorf("best candidate = %d, want %d for diagnostics", result.StudentID, mf.alice.ID)
	}

	updated, err := mf.crops.GetByID(query.ID)
	if err != nil {
		t.Fatalf("failed to reload crop: %v", err)
	}
	if updated.StudentID != nil {
		t.Errorf("below-threshold decision mutated the crop")
	}
}

func TestAssignPreconditions(t *testing.T) {
	mf := newMatcherFixture(t)

	// crop without an embedding
	noEmbedding := mf.createCrop(mf.image.ID)
	if _, err := mf.matcher.Assign(context.Background(), noEmbedding.ID, defaultParams()); !errors.Is(err, ErrMissingEmbedding) {
		t.Errorf("crop without embedding = %v, want ErrMissingEmbedding", err)
	}

	// embedded crop but zero labeled references in the class
	query := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(query.ID, testModel, unitVec(1, 0))
	if _, err := mf.matcher.Assign(context.Background(), query.ID, defaultParams()); !errors.Is(err, ErrNoLabeledReferences) {
		t.Errorf("no references = %v, want ErrNoLabeledReferences", err)
	}

	if _, err := mf.matcher.Assign(context.Background(), 9999, defaultParams()); !errors.Is(err, ErrCropNotFound) {
		t.Errorf("missing crop = %v, want ErrCropNotFound", err)
	}

	bad := defaultParams()
	bad.K = 0
	if _, err := mf.matcher.Assign(context.Background(), query.ID, bad); err == nil {
		t.Error("k=0 accepted")
	}
	bad = defaultParams()
	bad.Threshold = 1.5
	if _, err := mf.matcher.Assign(context.Background(), query.ID, bad); err == nil {
		t.Error("threshold > 1 accepted")
	}
}

func TestTallyVotes(t *testing.T) {
	tests := []struct {
		name      string
		neighbors []Neighbor
		want      uint
		wantVotes int
	}{
		{
			name: "plurality beats single closer neighbor",
			neighbors: []Neighbor{
				{CropID: 1, StudentID: 10, Similarity: 0.95},
				{CropID: 2, StudentID: 20, Similarity: 0.90},
				{CropID: 3, StudentID: 20, Similarity: 0.85},
			},
			want:      20,
			wantVotes: 2,
		},
		{
			name: "vote tie falls to higher mean similarity",
			neighbors: []Neighbor{
				{CropID: 1, StudentID: 10, Similarity: 0.90},
				{CropID: 2, StudentID: 20, Similarity: 0.85},
				{CropID: 3, StudentID: 10, Similarity: 0.50},
				{CropID: 4, StudentID: 20, Similarity: 0.80},
			},
			want:      20,
			wantVotes: 2,
		},
		{
			name: "full tie falls to first seen among neighbors",
			neighbors: []Neighbor{
				{CropID: 1, StudentID: 30, Similarity: 0.7},
				{CropID: 2, StudentID: 40, Similarity: 0.7},
			},
			want:      30,
			wantVotes: 1,
		},
		{
			name:      "empty",
			neighbors: nil,
			want:      0,
			wantVotes: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, votes, _ := tallyVotes(tt.neighbors)
			if got != tt.want || votes != tt.wantVotes {
				t.Errorf("tallyVotes = (%d, %d), want (%d, %d)", got, votes, tt.want, tt.wantVotes)
			}
		})
	}
}

func TestAssignWithVoting(t *testing.T) {
	mf := newMatcherFixture(t)
	// two bob references close to the query outvote one slightly closer alice
	mf.labeledCrop(mf.image.ID, mf.alice.ID, testModel, unitVec(1, 0))
	mf.labeledCrop(mf.image.ID, mf.bob.ID, testModel, unitVec(0.9, 0.3))
	mf.labeledCrop(mf.image.ID, mf.bob.ID, testModel, unitVec(0.9, -0.3))

	query := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(query.ID, testModel, unitVec(0.98, 0.02))

	params := defaultParams()
	params.UseVoting = true
	result, err := mf.matcher.Assign(context.Background(), query.ID, params)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.StudentID != mf.bob.ID {
		t.Errorf("voting assigned student %d, want %d", result.StudentID, mf.bob.ID)
	}
	if result.VoteCount != 2 {
		t.Errorf("vote count = %d, want 2", result.VoteCount)
	}
}

func TestAssignAllManifest(t *testing.T) {
	mf := newMatcherFixture(t)
	mf.labeledCrop(mf.image.ID, mf.alice.ID, testModel, unitVec(1, 0))

	near := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(near.ID, testModel, unitVec(0.99, 0.01))
	far := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(far.ID, testModel, unitVec(0, 0, 1))

	// an already-identified crop must not be revisited
	claimed := mf.labeledCrop(mf.image.ID, mf.bob.ID, testModel, unitVec(0, 1))

	result, err := mf.matcher.AssignAll(context.Background(), AssignScope{SessionID: mf.session.ID}, defaultParams())
	if err != nil {
		t.Fatalf("AssignAll failed: %v", err)
	}

	if len(result.Assigned) != 1 || result.Assigned[0].CropID != near.ID {
		t.Fatalf("assigned = %+v, want exactly crop %d", result.Assigned, near.ID)
	}
	if len(result.Unassigned) != 1 || result.Unassigned[0].CropID != far.ID {
		t.Fatalf("unassigned = %+v, want exactly crop %d", result.Unassigned, far.ID)
	}
	if result.Unassigned[0].Reason != ReasonBelowThreshold {
		t.Errorf("reason = %s, want %s", result.Unassigned[0].Reason, ReasonBelowThreshold)
	}

	reloaded, err := mf.crops.GetByID(claimed.ID)
	if err != nil {
		t.Fatalf("failed to reload claimed crop: %v", err)
	}
	if reloaded.StudentID == nil || *reloaded.StudentID != mf.bob.ID {
		t.Errorf("batch run touched an already-identified crop")
	}
}

func TestAssignAllRerunIsStable(t *testing.T) {
	mf := newMatcherFixture(t)
	mf.labeledCrop(mf.image.ID, mf.alice.ID, testModel, unitVec(1, 0))

	crop := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(crop.ID, testModel, unitVec(0.99, 0.01))

	scope := AssignScope{SessionID: mf.session.ID}
	first, err := mf.matcher.AssignAll(context.Background(), scope, defaultParams())
	if err != nil {
		t.Fatalf("first AssignAll failed: %v", err)
	}
	if len(first.Assigned) != 1 {
		t.Fatalf("first run assigned %d crops, want 1", len(first.Assigned))
	}

	second, err := mf.matcher.AssignAll(context.Background(), scope, defaultParams())
	if err != nil {
		t.Fatalf("second AssignAll failed: %v", err)
	}
	if len(second.Assigned) != 0 || len(second.Unassigned) != 0 {
		t.Errorf("re-run changed state: %+v", second)
	}
}

func TestAssignAfterMergeTargetsSurvivor(t *testing.T) {
	mf := newMatcherFixture(t)
	mf.labeledCrop(mf.image.ID, mf.alice.ID, testModel, unitVec(1, 0))

	query := mf.createCrop(mf.image.ID)
	mf.seedEmbedding(query.ID, testModel, unitVec(0.9, 0.44))

	// warm the index cache without mutating anything
	strict := defaultParams()
	strict.Threshold = 0.95
	warmup, err := mf.matcher.Assign(context.Background(), query.ID, strict)
	if err != nil {
		t.Fatalf("warm-up Assign failed: %v", err)
	}
	if warmup.Outcome != OutcomeBelowThreshold {
		t.Fatalf("warm-up outcome = %s, want below_threshold", warmup.Outcome)
	}

	merges := NewMergeService(mf.db, mf.students)
	if _, err := merges.Merge(context.Background(), mf.alice.ID, mf.bob.ID); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	// the reference set is the same size after the merge, but its crops now
	// belong to bob; the cached index must not resolve to the deleted student
	result, err := mf.matcher.Assign(context.Background(), query.ID, defaultParams())
	if err != nil {
		t.Fatalf("Assign after merge failed: %v", err)
	}
	if result.Outcome != OutcomeAssigned || result.StudentID != mf.bob.ID {
		t.Fatalf("assign after merge = %+v, want assigned to student %d", result, mf.bob.ID)
	}

	reloaded, err := mf.crops.GetByID(query.ID)
	if err != nil {
		t.Fatalf("failed to reload crop: %v", err)
	}
	if reloaded.StudentID == nil || *reloaded.StudentID != mf.bob.ID {
		t.Errorf("crop persisted to %v, want student %d", reloaded.StudentID, mf.bob.ID)
	}
}

func TestTagManual(t *testing.T) {
	mf := newMatcherFixture(t)
	crop := mf.createCrop(mf.image.ID)

	if err := mf.matcher.TagManual(crop.ID, mf.alice.ID); err != nil {
		t.Fatalf("TagManual failed: %v", err)
	}
	reloaded, err := mf.crops.GetByID(crop.ID)
	if err != nil {
		t.Fatalf("failed to reload crop: %v", err)
	}
	if reloaded.IdentificationSource != models.IdentificationManual {
		t.Errorf("source = %s, want manual", reloaded.IdentificationSource)
	}
	if reloaded.Confidence != nil {
		t.Errorf("manual tag stored a confidence value")
	}

	if err := mf.matcher.Untag(crop.ID); err != nil {
		t.Fatalf("Untag failed: %v", err)
	}
	reloaded, err = mf.crops.GetByID(crop.ID)
	if err != nil {
		t.Fatalf("failed to reload crop: %v", err)
	}
	if reloaded.StudentID != nil || reloaded.IdentificationSource != models.IdentificationNone {
		t.Errorf("untag did not revert the crop: %+v", reloaded)
	}
}

func TestTagManualCrossClass(t *testing.T) {
	mf := newMatcherFixture(t)
	otherClass := mf.createClass("MATH200")
	outsider := mf.createStudent(otherClass.ID, "Mallory")

	crop := mf.createCrop(mf.image.ID)
	if err := mf.matcher.TagManual(crop.ID, outsider.ID); !errors.Is(err, ErrCrossClassAssignment) {
		t.Fatalf("cross-class tag = %v, want ErrCrossClassAssignment", err)
	}
}

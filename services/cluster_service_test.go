package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/classroll/attendancebackend/models"
)

type clusterFixture struct {
	*fixture
	clusters *ClusterService
	class    *models.Class
	session  *models.Session
	image    *models.SessionImage
}

func newClusterFixture(t *testing.T) *clusterFixture {
	f := newFixture(t)
	class := f.createClass("CS101")
	session := f.createSession(class.ID, "Week 1")
	return &clusterFixture{
		fixture:  f,
		clusters: NewClusterService(f.db, f.sessions, f.students, f.embeddings),
		class:    class,
		session:  session,
		image:    f.createImage(session.ID),
	}
}

func (cf *clusterFixture) embeddedCrop(vector []float32) *models.FaceCrop {
	cf.t.Helper()
	crop := cf.createCrop(cf.image.ID)
	cf.seedEmbedding(crop.ID, testModel, vector)
	return crop
}

func defaultClusterParams() ClusterParams {
	return ClusterParams{Model: testModel, Threshold: 0.7, MaxClusters: 50}
}

func TestClusterBootstrap(t *testing.T) {
	cf := newClusterFixture(t)

	// two tight groups and one outlier
	groupA := []*models.FaceCrop{
		cf.embeddedCrop(unitVec(1, 0)),
		cf.embeddedCrop(unitVec(0.98, 0.02)),
		cf.embeddedCrop(unitVec(0.97, -0.02)),
	}
	groupB := []*models.FaceCrop{
		cf.embeddedCrop(unitVec(0, 1)),
		cf.embeddedCrop(unitVec(0.02, 0.98)),
	}
	outlier := cf.embeddedCrop(unitVec(0, 0, 1))

	result, err := cf.clusters.Cluster(context.Background(), cf.session.ID, defaultClusterParams())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}

	if len(result.Clusters) != 2 {
		t.Fatalf("got %d clusters, want 2: %+v", len(result.Clusters), result.Clusters)
	}
	if len(result.Unclustered) != 1 || result.Unclustered[0] != outlier.ID {
		t.Fatalf("unclustered = %v, want [%d]", result.Unclustered, outlier.ID)
	}

	sizes := map[int]int{}
	for _, cluster := range result.Clusters {
		sizes[len(cluster.CropIDs)]++
		if !strings.HasPrefix(cluster.StudentName, "Week 1_Student_") {
			t.Errorf("placeholder name %q missing session prefix", cluster.StudentName)
		}
		if cluster.Cohesion <= 0.7 {
			t.Errorf("cluster cohesion %v not above the threshold for a tight group", cluster.Cohesion)
		}

		student, err := cf.students.GetByID(cluster.StudentID)
		if err != nil {
			t.Fatalf("placeholder student %d not persisted: %v", cluster.StudentID, err)
		}
		if student.ClassID != cf.class.ID {
			t.Errorf("placeholder created in class %d, want %d", student.ClassID, cf.class.ID)
		}
	}
	if sizes[3] != 1 || sizes[2] != 1 {
		t.Errorf("cluster sizes = %v, want one of 3 and one of 2", sizes)
	}

	// every member crop carries an automatic assignment with the cluster's
	// cohesion as confidence
	for _, crop := range append(groupA, groupB...) {
		reloaded, err := cf.crops.GetByID(crop.ID)
		if err != nil {
			t.Fatalf("failed to reload crop %d: %v", crop.ID, err)
		}
		if reloaded.StudentID == nil {
			t.Errorf("crop %d left unassigned", crop.ID)
			continue
		}
		if reloaded.IdentificationSource != models.IdentificationAutomatic {
			t.Errorf("crop %d source = %s, want automatic", crop.ID, reloaded.IdentificationSource)
		}
		if reloaded.Confidence == nil {
			t.Errorf("crop %d has no confidence", crop.ID)
		}
	}

	reloadedOutlier, err := cf.crops.GetByID(outlier.ID)
	if err != nil {
		t.Fatalf("failed to reload outlier: %v", err)
	}
	if reloadedOutlier.StudentID != nil {
		t.Errorf("singleton crop was assigned without force")
	}
}

func TestClusterForceIncludesSingletons(t *testing.T) {
	cf := newClusterFixture(t)
	cf.embeddedCrop(unitVec(1, 0))
	cf.embeddedCrop(unitVec(0, 1))

	params := defaultClusterParams()
	params.Force = true
	result, err := cf.clusters.Cluster(context.Background(), cf.session.ID, params)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("force got %d clusters, want 2", len(result.Clusters))
	}
	if len(result.Unclustered) != 0 {
		t.Errorf("force left crops unclustered: %v", result.Unclustered)
	}
	for _, cluster := range result.Clusters {
		if cluster.Cohesion != 1.0 {
			t.Errorf("singleton cohesion = %v, want 1.0", cluster.Cohesion)
		}
	}
}

func TestClusterMaxClustersCap(t *testing.T) {
	cf := newClusterFixture(t)
	// three well-separated pairs, cap at two clusters
	cf.embeddedCrop(unitVec(1, 0))
	cf.embeddedCrop(unitVec(0.99, 0.01))
	cf.embeddedCrop(unitVec(0, 1))
	cf.embeddedCrop(unitVec(0.01, 0.99))
	cf.embeddedCrop(unitVec(0.7, 0.7))
	cf.embeddedCrop(unitVec(0.71, 0.69))

	params := defaultClusterParams()
	params.Threshold = 0.95
	params.MaxClusters = 2
	result, err := cf.clusters.Cluster(context.Background(), cf.session.ID, params)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("cap got %d clusters, want 2", len(result.Clusters))
	}
	total := 0
	for _, cluster := range result.Clusters {
		total += len(cluster.CropIDs)
	}
	if total != 6 {
		t.Errorf("cap lost crops: %d assigned, want 6", total)
	}
}

func TestClusterPlaceholderNumberingContinues(t *testing.T) {
	cf := newClusterFixture(t)
	cf.createStudent(cf.class.ID, "Week 1_Student_1")

	cf.embeddedCrop(unitVec(1, 0))
	cf.embeddedCrop(unitVec(0.99, 0.01))

	result, err := cf.clusters.Cluster(context.Background(), cf.session.ID, defaultClusterParams())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(result.Clusters))
	}
	if result.Clusters[0].StudentName != "Week 1_Student_2" {
		t.Errorf("placeholder name = %q, want Week 1_Student_2", result.Clusters[0].StudentName)
	}
}

func TestClusterValidation(t *testing.T) {
	cf := newClusterFixture(t)

	params := defaultClusterParams()
	params.MaxClusters = 0
	if _, err := cf.clusters.Cluster(context.Background(), cf.session.ID, params); !errors.Is(err, ErrInvalidMaxClusters) {
		t.Errorf("max_clusters=0 = %v, want ErrInvalidMaxClusters", err)
	}

	if _, err := cf.clusters.Cluster(context.Background(), 9999, defaultClusterParams()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session = %v, want ErrSessionNotFound", err)
	}

	// no eligible crops in the session at all
	if _, err := cf.clusters.Cluster(context.Background(), cf.session.ID, defaultClusterParams()); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty session = %v, want ErrInsufficientData", err)
	}
}

func TestClusterSingleCrop(t *testing.T) {
	cf := newClusterFixture(t)
	only := cf.embeddedCrop(unitVec(1, 0))

	result, err := cf.clusters.Cluster(context.Background(), cf.session.ID, defaultClusterParams())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(result.Clusters) != 0 {
		t.Fatalf("lone crop formed a cluster without force: %+v", result.Clusters)
	}
	if len(result.Unclustered) != 1 || result.Unclustered[0] != only.ID {
		t.Fatalf("unclustered = %v, want [%d]", result.Unclustered, only.ID)
	}

	params := defaultClusterParams()
	params.Force = true
	result, err = cf.clusters.Cluster(context.Background(), cf.session.ID, params)
	if err != nil {
		t.Fatalf("forced Cluster failed: %v", err)
	}
	if len(result.Clusters) != 1 || len(result.Clusters[0].CropIDs) != 1 {
		t.Fatalf("force got %+v, want one single-crop cluster", result.Clusters)
	}
	if result.Clusters[0].Cohesion != 1.0 {
		t.Errorf("singleton cohesion = %v, want 1.0", result.Clusters[0].Cohesion)
	}
	reloaded, err := cf.crops.GetByID(only.ID)
	if err != nil {
		t.Fatalf("failed to reload crop: %v", err)
	}
	if reloaded.StudentID == nil || *reloaded.StudentID != result.Clusters[0].StudentID {
		t.Errorf("forced singleton crop not assigned to its placeholder")
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"gorm.io/gorm"
)

// ClusterParams control one bootstrap run over a session's unidentified crops.
type ClusterParams struct {
	Model       string  `json:"model" validate:"required"`
	Threshold   float32 `json:"threshold" validate:"gt=0,lte=1"`
	MaxClusters int     `json:"max_clusters" validate:"gte=1"`
	Force       bool    `json:"force"`
}

// ClusterGroup is one bootstrapped identity: the placeholder student that was
// created and the crops assigned to it. Cohesion is the mean pairwise
// similarity of the member embeddings (1.0 for a single member).
type ClusterGroup struct {
	StudentID   uint    `json:"student_id"`
	StudentName string  `json:"student_name"`
	CropIDs     []uint  `json:"crop_ids"`
	Cohesion    float32 `json:"cohesion"`
}

// ClusterResult is the manifest of one bootstrap run.
type ClusterResult struct {
	Clusters    []ClusterGroup `json:"clusters"`
	Unclustered []uint         `json:"unclustered,omitempty"`
	Skipped     []uint         `json:"skipped,omitempty"`
}

// ClusterService bootstraps identities for a session that has no labeled
// students yet: it groups the session's unidentified embeddings by mutual
// similarity and creates a placeholder student per group.
type ClusterService struct {
	db            *gorm.DB
	sessionRepo   repository.SessionRepositoryInterface
	studentRepo   repository.StudentRepositoryInterface
	embeddingRepo repository.EmbeddingRepositoryInterface
}

// NewClusterService creates a new cluster service
func NewClusterService(
	db *gorm.DB,
	sessionRepo repository.SessionRepositoryInterface,
	studentRepo repository.StudentRepositoryInterface,
	embeddingRepo repository.EmbeddingRepositoryInterface,
) *ClusterService {
	return &ClusterService{
		db:            db,
		sessionRepo:   sessionRepo,
		studentRepo:   studentRepo,
		embeddingRepo: embeddingRepo,
	}
}

// Cluster groups the session's unidentified embedded crops into identity
// clusters and commits them as placeholder students. Crops whose component is
// a singleton are left alone unless Force is set. The commit happens in a
// single transaction, and every crop is re-checked for concurrent assignment
// before it is claimed.
func (s *ClusterService) Cluster(ctx context.Context, sessionID uint, params ClusterParams) (*ClusterResult, error) {
	if params.MaxClusters < 1 {
		return nil, ErrInvalidMaxClusters
	}
	if params.Threshold <= 0 || params.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1], got %f", params.Threshold)
	}

	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	embeddings, err := s.embeddingRepo.ListUnassignedBySession(sessionID, params.Model)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, ErrInsufficientData
	}

	cropIDs := make([]uint, len(embeddings))
	vectors := make([][]float32, len(embeddings))
	for i := range embeddings {
		cropIDs[i] = embeddings[i].CropID
		vectors[i] = embeddings[i].GetEmbedding()
	}

	sims := pairwiseSimilarities(vectors)
	groups := connectedComponents(len(vectors), sims, params.Threshold)

	result := &ClusterResult{}
	var clusters [][]int
	for _, group := range groups {
		if len(group) >= 2 || params.Force {
			clusters = append(clusters, group)
		} else {
			result.Unclustered = append(result.Unclustered, cropIDs[group[0]])
		}
	}
	if len(clusters) == 0 {
		return result, nil
	}

	clusters = mergeToCap(clusters, sims, params.MaxClusters)

	// stable output order regardless of map iteration
	for _, cluster := range clusters {
		sort.Ints(cluster)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })

	prefix := session.Name + "_Student_"
	existing, err := s.studentRepo.CountByNamePrefix(session.ClassID, prefix)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txStudents := repository.NewStudentRepository(tx)
		txCrops := repository.NewFaceCropRepository(tx)

		next := existing + 1
		for _, cluster := range clusters {
			if err := ctx.Err(); err != nil {
				return err
			}
			cohesion := clusterCohesion(cluster, sims)
			student := &models.Student{
				ClassID: session.ClassID,
				Name:    fmt.Sprintf("%s%d", prefix, next),
			}
			if err := txStudents.Create(student); err != nil {
				return err
			}

			group := ClusterGroup{
				StudentID:   student.ID,
				StudentName: student.Name,
				Cohesion:    cohesion,
			}
			for _, idx := range cluster {
				confidence := cohesion
				model := params.Model
				applied, err := txCrops.AssignIfUnidentified(cropIDs[idx], student.ID, models.IdentificationAutomatic, &confidence, &model)
				if err != nil {
					return err
				}
				if !applied {
					result.Skipped = append(result.Skipped, cropIDs[idx])
					continue
				}
				group.CropIDs = append(group.CropIDs, cropIDs[idx])
			}

			// a competing run claimed every member of this cluster
			if len(group.CropIDs) == 0 {
				if err := txStudents.Delete(student.ID); err != nil {
					return err
				}
				continue
			}

			result.Clusters = append(result.Clusters, group)
			next++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("cluster: session %d bootstrapped %d identities from %d crop(s) (threshold %.2f, force=%v)",
		sessionID, len(result.Clusters), len(embeddings), params.Threshold, params.Force)
	return result, nil
}

// pairwiseSimilarities fills the full symmetric similarity matrix
func pairwiseSimilarities(vectors [][]float32) [][]float32 {
	n := len(vectors)
	sims := make([][]float32, n)
	for i := range sims {
		sims[i] = make([]float32, n)
		sims[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := CosineSimilarity(vectors[i], vectors[j])
			sims[i][j] = sim
			sims[j][i] = sim
		}
	}
	return sims
}

// connectedComponents groups indices whose similarity meets the threshold,
// treating similarity edges as transitive
func connectedComponents(n int, sims [][]float32, threshold float32) [][]int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sims[i][j] >= threshold {
				parent[find(i)] = find(j)
			}
		}
	}

	byRoot := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	groups := make([][]int, 0, len(byRoot))
	for _, group := range byRoot {
		groups = append(groups, group)
	}
	return groups
}

// mergeToCap reduces the cluster count to the cap by repeatedly merging the
// pair of clusters with the highest average cross-similarity
func mergeToCap(clusters [][]int, sims [][]float32, maxClusters int) [][]int {
	for len(clusters) > maxClusters {
		bestI, bestJ := 0, 1
		var bestSim float32 = -2
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				sim := averageLinkage(clusters[i], clusters[j], sims)
				if sim > bestSim {
					bestSim = sim
					bestI, bestJ = i, j
				}
			}
		}
		clusters[bestI] = append(clusters[bestI], clusters[bestJ]...)
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)
	}
	return clusters
}

// averageLinkage is the mean similarity across all cross-cluster pairs
func averageLinkage(a, b []int, sims [][]float32) float32 {
	var sum float32
	for _, i := range a {
		for _, j := range b {
			sum += sims[i][j]
		}
	}
	return sum / float32(len(a)*len(b))
}

// clusterCohesion is the mean pairwise similarity inside one cluster, 1.0 for
// a singleton
func clusterCohesion(cluster []int, sims [][]float32) float32 {
	if len(cluster) < 2 {
		return 1
	}
	var sum float32
	pairs := 0
	for x := 0; x < len(cluster); x++ {
		for y := x + 1; y < len(cluster); y++ {
			sum += sims[cluster[x]][cluster[y]]
			pairs++
		}
	}
	return sum / float32(pairs)
}

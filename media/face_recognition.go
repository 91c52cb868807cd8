package media

import (
	"fmt"
	"image"
	"log"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// FaceRecognitionModel provides face embedding extraction for recognition
type FaceRecognitionModel struct {
	Net       gocv.Net
	Enabled   bool
	ModelName string
	OutputDim int

	// Configuration parameters
	InputSizeW  int
	InputSizeH  int
	ScaleFactor float64
	MeanVal     gocv.Scalar
}

// NewFaceRecognitionModel loads a face recognition model (ArcFace, FaceNet, etc.)
func NewFaceRecognitionModel(modelPath string, modelName string) *FaceRecognitionModel {
	if modelPath == "" {
		log.Println("recognition: model path is empty, disabling face recognition")
		return &FaceRecognitionModel{Enabled: false, ModelName: modelName}
	}

	log.Printf("recognition: attempting to load %s model: %s", modelName, modelPath)

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		log.Printf("recognition: ERROR - model file does not exist: %s", modelPath)
		return &FaceRecognitionModel{Enabled: false, ModelName: modelName}
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Printf("recognition: ERROR - ReadNet returned an empty network for %s. Check file path and integrity.", modelName)
		return &FaceRecognitionModel{Enabled: false, ModelName: modelName}
	}

	// Try to use CUDA if available
	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)

	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Printf("recognition: set backend/target to CUDA for %s", modelName)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Printf("recognition: set backend/target to CPU (default) for %s", modelName)
	}

	// Set model-specific parameters
	var inputSizeW, inputSizeH int
	switch modelName {
	case "arcface":
		inputSizeW, inputSizeH = 112, 112
	case "facenet":
		inputSizeW, inputSizeH = 160, 160
	default:
		inputSizeW, inputSizeH = 112, 112
	}

	return &FaceRecognitionModel{
		Net:         net,
		Enabled:     true,
		ModelName:   modelName,
		OutputDim:   512,
		InputSizeW:  inputSizeW,
		InputSizeH:  inputSizeH,
		ScaleFactor: 1.0 / 255.0,
		MeanVal:     gocv.NewScalar(0, 0, 0, 0),
	}
}

func (f *FaceRecognitionModel) Close() {
	if f != nil && f.Enabled {
		f.Net.Close()
		log.Printf("recognition: closed %s network", f.ModelName)
		f.Enabled = false
	}
}

// Model returns the model name used as the embedding key
func (f *FaceRecognitionModel) Model() string {
	return f.ModelName
}

// Dim returns the declared output dimensionality
func (f *FaceRecognitionModel) Dim() int {
	return f.OutputDim
}

// Embed extracts an L2-normalized face embedding from a cropped face image
func (f *FaceRecognitionModel) Embed(img image.Image) ([]float32, error) {
	if f == nil || !f.Enabled {
		return nil, fmt.Errorf("recognition model %s is not loaded", f.ModelName)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert crop to mat: %w", err)
	}
	defer mat.Close()

	embedding := f.extractEmbedding(mat)
	if len(embedding) == 0 {
		return nil, fmt.Errorf("model %s produced an empty embedding", f.ModelName)
	}
	return embedding, nil
}

// extractEmbedding runs the network on an RGB face mat
func (f *FaceRecognitionModel) extractEmbedding(faceRegion gocv.Mat) []float32 {
	if faceRegion.Empty() {
		return nil
	}

	resized := gocv.NewMat()
	gocv.Resize(faceRegion, &resized, image.Pt(f.InputSizeW, f.InputSizeH), 0, 0, gocv.InterpolationLinear)
	defer resized.Close()

	// ArcFace/FaceNet take [0,1]-scaled RGB input
	blob := gocv.BlobFromImage(resized, f.ScaleFactor, image.Pt(f.InputSizeW, f.InputSizeH), f.MeanVal, false, false)
	defer blob.Close()

	f.Net.SetInput(blob, "")
	output := f.Net.Forward("")
	defer output.Close()

	embedding := f.extractEmbeddingVector(output)
	if len(embedding) == 0 {
		return nil
	}

	return f.normalizeEmbedding(embedding)
}

// extractEmbeddingVector extracts the embedding vector from model output
func (f *FaceRecognitionModel) extractEmbeddingVector(output gocv.Mat) []float32 {
	sizes := output.Size()
	if len(sizes) == 0 {
		return nil
	}

	// Flatten the output to get the embedding vector
	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	embeddingSize := flattened.Cols()
	embedding := make([]float32, embeddingSize)

	for i := 0; i < embeddingSize; i++ {
		embedding[i] = flattened.GetFloatAt(0, i)
	}

	return embedding
}

// normalizeEmbedding normalizes the embedding vector to unit length
func (f *FaceRecognitionModel) normalizeEmbedding(embedding []float32) []float32 {
	if len(embedding) == 0 {
		return embedding
	}

	var norm float32
	for _, val := range embedding {
		norm += val * val
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm == 0 {
		return embedding
	}

	normalized := make([]float32, len(embedding))
	for i, val := range embedding {
		normalized[i] = val / norm
	}

	return normalized
}

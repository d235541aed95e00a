package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	embInputSide = 112
	embDim       = 512
	embInputName = "input.1"
	embOutput    = "683"
)

// Embedder extracts ArcFace (w600k_r50) embeddings from aligned face crops.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewEmbedder loads the embedding model. opts may be nil.
func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embInputSide, embInputSide))
	if err != nil {
		return nil, fmt.Errorf("create embedder input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embDim))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create embedder output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{embInputName}, []string{embOutput},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, opts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{session: session, inputTensor: inputTensor, outputTensor: outputTensor}, nil
}

// Extract returns an L2-normalized embedding of the face crop.
// Not safe for concurrent use.
func (e *Embedder) Extract(face image.Image) ([]float32, error) {
	copy(e.inputTensor.GetData(), ToCHW(face, embInputSide, embInputSide, embMean, embStd))

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, embDim)
	copy(embedding, e.outputTensor.GetData())
	Normalize(embedding)
	return embedding, nil
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

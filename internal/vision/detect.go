package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found by the detector, in source pixel coordinates.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32
}

// Size returns the box width and height.
func (d Detection) Size() (float32, float32) {
	return d.BBox[2] - d.BBox[0], d.BBox[3] - d.BBox[1]
}

// Detector runs the RetinaFace det_10g model.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

const (
	detInputSide     = 640
	anchorsPerCell   = 2
	detNMSThreshold  = 0.4
	detInputName     = "input.1"
	detScoreGroup    = 0
	detBoxGroup      = 1
	detLandmarkGroup = 2
)

var detStrides = []int{8, 16, 32}

// detOutputNames is indexed [group][stride] where group is score, box, landmark.
var detOutputNames = [3][3]string{
	{"448", "471", "494"},
	{"451", "474", "497"},
	{"454", "477", "500"},
}

var detGroupWidth = [3]int64{1, 4, 10}

// NewDetector loads the detection model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSide, detInputSide))
	if err != nil {
		return nil, fmt.Errorf("create detector input tensor: %w", err)
	}

	var names []string
	var tensors []*ort.Tensor[float32]
	var values []ort.Value
	destroy := func() {
		inputTensor.Destroy()
		for _, t := range tensors {
			t.Destroy()
		}
	}

	// outputs carry no batch dimension: rows = (side/stride)^2 * anchors
	for group := range detOutputNames {
		for si, stride := range detStrides {
			cells := int64(detInputSide/stride) * int64(detInputSide/stride) * anchorsPerCell
			t, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, detGroupWidth[group]))
			if err != nil {
				destroy()
				return nil, fmt.Errorf("create detector output %s: %w", detOutputNames[group][si], err)
			}
			names = append(names, detOutputNames[group][si])
			tensors = append(tensors, t)
			values = append(values, t)
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{detInputName}, names,
		[]ort.Value{inputTensor}, values, opts)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: tensors,
		threshold:     threshold,
		inputW:        detInputSide,
		inputH:        detInputSide,
	}, nil
}

// Detect finds faces in img, sorted by descending confidence after NMS.
// Not safe for concurrent use.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	b := img.Bounds()
	copy(d.inputTensor.GetData(), ToCHW(img, d.inputW, d.inputH, detMean, detStd))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	return nms(d.decode(b.Dx(), b.Dy()), detNMSThreshold), nil
}

func (d *Detector) output(group, strideIdx int) []float32 {
	return d.outputTensors[group*len(detStrides)+strideIdx].GetData()
}

// decode turns anchor offsets into boxes in source coordinates.
func (d *Detector) decode(srcW, srcH int) []Detection {
	var out []Detection
	sx := float32(srcW) / float32(d.inputW)
	sy := float32(srcH) / float32(d.inputH)

	for si, stride := range detStrides {
		scores := d.output(detScoreGroup, si)
		boxes := d.output(detBoxGroup, si)
		marks := d.output(detLandmarkGroup, si)
		cols := d.inputW / stride
		st := float32(stride)

		for i := range scores {
			if scores[i] < d.threshold {
				continue
			}
			cell := i / anchorsPerCell
			ax := float32(cell%cols) * st
			ay := float32(cell/cols) * st

			det := Detection{
				BBox: [4]float32{
					clampF((ax-boxes[i*4]*st)*sx, 0, float32(srcW)),
					clampF((ay-boxes[i*4+1]*st)*sy, 0, float32(srcH)),
					clampF((ax+boxes[i*4+2]*st)*sx, 0, float32(srcW)),
					clampF((ay+boxes[i*4+3]*st)*sy, 0, float32(srcH)),
				},
				Confidence: scores[i],
			}
			for k := 0; k < 5; k++ {
				det.Landmarks[k][0] = (ax + marks[i*10+k*2]*st) * sx
				det.Landmarks[k][1] = (ay + marks[i*10+k*2+1]*st) * sy
			}
			out = append(out, det)
		}
	}
	return out
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms keeps the strongest box of every overlapping cluster. The result is
// ordered by descending confidence.
func nms(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) == 0 {
		return dets
	}
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	suppressed := make([]bool, len(dets))
	var kept []Detection
	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if !suppressed[j] && iou(dets[i].BBox, dets[j].BBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	ix := math.Max(0, math.Min(float64(a[2]), float64(b[2]))-math.Max(float64(a[0]), float64(b[0])))
	iy := math.Max(0, math.Min(float64(a[3]), float64(b[3]))-math.Max(float64(a[1]), float64(b[1])))
	inter := float32(ix * iy)

	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

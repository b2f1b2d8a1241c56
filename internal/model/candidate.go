package model

// BoundingBox locates a detection in the source image.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width" validate:"gte=0"`
	Height float64 `json:"height" validate:"gte=0"`
}

// RecognitionCandidate is one AI guess produced by the recognition backend.
// It is untrusted input until the reconciler has validated it.
type RecognitionCandidate struct {
	Box        *BoundingBox `json:"bbox,omitempty" validate:"omitempty"`
	StudentID  string       `json:"student_id" validate:"required"`
	Name       string       `json:"student_name,omitempty"`
	RollNumber string       `json:"roll_no,omitempty"`
	Confidence float64      `json:"confidence" validate:"gte=0,lte=1"`
}

package patscan

// Evaluator is the trained pattern scorer. The scanning core treats it as an
// opaque capability: the scan binds it to the pixel data of the current level
// through SetImage, positions it with SetSubWindow and queries the decision,
// the confidence and the window actually evaluated. A cascade classifier may
// slightly refine the reported box, which is why Window is part of the contract.
type Evaluator interface {
	// SetImage binds the evaluator to a grayscale pixel grid.
	// Dim is the row stride of the pixel slice.
	SetImage(pix []uint8, rows, cols, dim int) error
	// SetSubWindow positions the evaluator on a candidate sub-window and
	// computes the decision. It returns an error if the window cannot be
	// evaluated, for example when the classifier input requirements are unmet.
	SetSubWindow(x, y, w, h int) error
	// IsPattern reports the accept/reject decision of the last sub-window.
	IsPattern() bool
	// Confidence returns the score of the last sub-window.
	Confidence() float64
	// Window returns the sub-window coordinates actually evaluated,
	// in the coordinate frame of the bound image.
	Window() Rect
}

// EvaluatorCloner is implemented by evaluators that can produce an unbound
// copy of themselves, allowing the scan to be sharded across workers.
type EvaluatorCloner interface {
	Clone() Evaluator
}

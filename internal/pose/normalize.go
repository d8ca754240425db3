package pose

// NormalizerConfig holds configuration parameters for frame normalization.
type NormalizerConfig struct {
	SmoothingAlpha float64 // EMA weight for the incoming sample
	MinConfidence  float64 // Minimum per-joint confidence for required joints
	RequiredJoints []Joint // Joints that must pass the confidence gate
	BlendWeight    float64 // Weight of the primary source when blending two estimates
}

// DefaultNormalizerConfig returns default normalizer configuration.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		SmoothingAlpha: 0.3,
		MinConfidence:  0.5,
		RequiredJoints: CoreJoints,
		BlendWeight:    0.6,
	}
}

// Normalizer gates frames on keypoint confidence and applies exponential
// smoothing per coordinate. It carries the previous smoothed frame; one
// Normalizer serves one subject and must be fed frames in order.
type Normalizer struct {
	Config NormalizerConfig

	prev *Frame
}

// NewNormalizer creates a normalizer with the given configuration.
func NewNormalizer(config NormalizerConfig) *Normalizer {
	return &Normalizer{Config: config}
}

// Normalize validates and smooths a raw frame. It returns nil when the frame
// does not carry all required joints at sufficient confidence; callers must
// treat nil as "no observation this frame", not as an error.
//
// The first accepted frame anchors the filter and passes through unsmoothed.
func (n *Normalizer) Normalize(raw *Frame) *Frame {
	if raw == nil {
		return nil
	}
	for _, j := range n.Config.RequiredJoints {
		kp, ok := raw.Joints[j]
		if !ok || kp.Confidence < n.Config.MinConfidence {
			return nil
		}
	}

	out := raw.Clone()
	if n.prev != nil {
		alpha := n.Config.SmoothingAlpha
		for j, kp := range out.Joints {
			pkp, ok := n.prev.Joints[j]
			if !ok {
				continue // joint newly visible, anchor it unsmoothed
			}
			kp.X = alpha*kp.X + (1-alpha)*pkp.X
			kp.Y = alpha*kp.Y + (1-alpha)*pkp.Y
			out.Joints[j] = kp
		}
	}
	n.prev = out
	return out
}

// NormalizeBlended merges two independent pose estimates for the same frame
// before smoothing. The secondary source may be nil, in which case this is
// equivalent to Normalize(primary).
func (n *Normalizer) NormalizeBlended(primary, secondary *Frame) *Frame {
	if secondary == nil {
		return n.Normalize(primary)
	}
	return n.Normalize(Blend(primary, secondary, n.Config.BlendWeight))
}

// Reset discards the carried smoothing state. The next accepted frame
// re-anchors the filter.
func (n *Normalizer) Reset() {
	n.prev = nil
}

// Blend combines two estimates of the same frame as a weighted average.
// Joints present in only one source are taken from that source. Confidence
// is blended with the same weight as the coordinates.
func Blend(primary, secondary *Frame, weight float64) *Frame {
	if primary == nil {
		return secondary
	}
	out := primary.Clone()
	w := weight
	for j, skp := range secondary.Joints {
		pkp, ok := out.Joints[j]
		if !ok {
			out.Joints[j] = skp
			continue
		}
		out.Joints[j] = Keypoint{
			X:          w*pkp.X + (1-w)*skp.X,
			Y:          w*pkp.Y + (1-w)*skp.Y,
			Confidence: w*pkp.Confidence + (1-w)*skp.Confidence,
		}
	}
	return out
}

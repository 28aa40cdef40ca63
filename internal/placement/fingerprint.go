// Package placement implements the Placement Engine: admission control
// for inference-server (vLLM-style) deployments based on GPU resource
// fingerprints.
package placement

import (
	"sort"
)

// ConfigFingerprint is the canonical tuple that determines reuse and
// conflict for VLLMDeployments. Equality is value
// equality on every field; AdditionalArgs is compared as a sorted
// mapping with canonical string values.
type ConfigFingerprint struct {
	ModelName            string
	GPUResourceType      string
	GPUResourceCount     int
	GPUMemoryUtilization float64
	MaxNumSeqs           int
	BlockSize            int
	TensorParallelSize   int
	PipelineParallelSize int
	TrustRemoteCode      bool
	DType                string
	MaxModelLen          int
	Quantization         string
	ServedModelName      string
	AdditionalArgs       map[string]string
}

// Equal reports whether two fingerprints are identical under the
// canonical encoding.
func (f ConfigFingerprint) Equal(other ConfigFingerprint) bool {
	if f.ModelName != other.ModelName ||
		f.GPUResourceType != other.GPUResourceType ||
		f.GPUResourceCount != other.GPUResourceCount ||
		f.GPUMemoryUtilization != other.GPUMemoryUtilization ||
		f.MaxNumSeqs != other.MaxNumSeqs ||
		f.BlockSize != other.BlockSize ||
		f.TensorParallelSize != other.TensorParallelSize ||
		f.PipelineParallelSize != other.PipelineParallelSize ||
		f.TrustRemoteCode != other.TrustRemoteCode ||
		f.DType != other.DType ||
		f.MaxModelLen != other.MaxModelLen ||
		f.Quantization != other.Quantization ||
		f.ServedModelName != other.ServedModelName {
		return false
	}
	return equalArgs(f.AdditionalArgs, other.AdditionalArgs)
}

func equalArgs(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// canonicalKeys returns the sorted keys of AdditionalArgs, used
// wherever a deterministic iteration order matters (logging, hashing).
func canonicalKeys(args map[string]string) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders a fingerprint deterministically (AdditionalArgs in
// sorted-key order) for log lines, never for equality comparison.
func (f ConfigFingerprint) String() string {
	s := f.ModelName + "/" + f.GPUResourceType
	for _, k := range canonicalKeys(f.AdditionalArgs) {
		s += " " + k + "=" + f.AdditionalArgs[k]
	}
	return s
}

// GPUConflicts reports whether two fingerprints conflict for GPU
// placement purposes: both request a positive count of the exact same
// GPU resource type.
func GPUConflicts(a, b ConfigFingerprint) bool {
	if a.GPUResourceCount <= 0 || b.GPUResourceCount <= 0 {
		return false
	}
	return a.GPUResourceType == b.GPUResourceType
}

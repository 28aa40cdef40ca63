package placement

import "testing"

func TestGPUConflictsExactTypeOnly(t *testing.T) {
	cases := []struct {
		name     string
		a, b     ConfigFingerprint
		conflict bool
	}{
		{
			name:     "same unqualified gpu type conflicts",
			a:        ConfigFingerprint{GPUResourceType: "nvidia.com/gpu", GPUResourceCount: 1},
			b:        ConfigFingerprint{GPUResourceType: "nvidia.com/gpu", GPUResourceCount: 1},
			conflict: true,
		},
		{
			name:     "different MIG slices do not conflict",
			a:        ConfigFingerprint{GPUResourceType: "nvidia.com/mig-3g.20gb", GPUResourceCount: 1},
			b:        ConfigFingerprint{GPUResourceType: "nvidia.com/mig-4g.24gb", GPUResourceCount: 1},
			conflict: false,
		},
		{
			name:     "same MIG slice conflicts",
			a:        ConfigFingerprint{GPUResourceType: "nvidia.com/mig-3g.20gb", GPUResourceCount: 1},
			b:        ConfigFingerprint{GPUResourceType: "nvidia.com/mig-3g.20gb", GPUResourceCount: 1},
			conflict: true,
		},
		{
			name:     "zero count never conflicts",
			a:        ConfigFingerprint{GPUResourceType: "nvidia.com/gpu", GPUResourceCount: 0},
			b:        ConfigFingerprint{GPUResourceType: "nvidia.com/gpu", GPUResourceCount: 1},
			conflict: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GPUConflicts(tc.a, tc.b); got != tc.conflict {
				t.Errorf("GPUConflicts(%+v, %+v) = %v, want %v", tc.a, tc.b, got, tc.conflict)
			}
		})
	}
}

func TestFingerprintEqualIgnoresArgOrdering(t *testing.T) {
	a := ConfigFingerprint{
		ModelName:       "microsoft/DialoGPT-medium",
		GPUResourceType: "nvidia.com/gpu",
		AdditionalArgs:  map[string]string{"max-log-len": "100", "enforce-eager": "true"},
	}
	b := ConfigFingerprint{
		ModelName:       "microsoft/DialoGPT-medium",
		GPUResourceType: "nvidia.com/gpu",
		AdditionalArgs:  map[string]string{"enforce-eager": "true", "max-log-len": "100"},
	}
	if !a.Equal(b) {
		t.Errorf("expected fingerprints to be equal regardless of map iteration order")
	}
}

func TestFingerprintEqualTreatsAbsentAndEmptyArgsAlike(t *testing.T) {
	a := ConfigFingerprint{ModelName: "m", AdditionalArgs: nil}
	b := ConfigFingerprint{ModelName: "m", AdditionalArgs: map[string]string{}}
	if !a.Equal(b) {
		t.Errorf("nil and empty AdditionalArgs should compare equal (both mean \"no extra args\")")
	}

	c := ConfigFingerprint{ModelName: "m", AdditionalArgs: map[string]string{"k": "v"}}
	if a.Equal(c) {
		t.Errorf("present args must not equal absent args")
	}
}

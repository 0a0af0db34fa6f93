package selection

import "github.com/dgketchum/Landsat578/internal/landsat"

// Thin picks up to n scenes spread evenly over the count of acquisitions in
// all, which must be ordered by acquisition date. Bucket i covers indices
// [i*L/n, (i+1)*L/n) and contributes its least cloudy scene; ties go to the
// earliest. Scenes without a cloud estimate lose to any scene with one.
func Thin(all []landsat.SceneRecord, n int) []landsat.SceneRecord {
	l := len(all)
	if n <= 0 || l == 0 {
		return []landsat.SceneRecord{}
	}
	out := make([]landsat.SceneRecord, 0, min(n, l))
	for i := 0; i < n; i++ {
		lo, hi := i*l/n, (i+1)*l/n
		if lo >= hi {
			continue
		}
		best := lo
		for j := lo + 1; j < hi; j++ {
			if clearer(all[j], all[best]) {
				best = j
			}
		}
		out = append(out, all[best])
	}
	return out
}

// clearer reports whether a has strictly less cloud than b.
func clearer(a, b landsat.SceneRecord) bool {
	switch {
	case a.CloudCover == nil:
		return false
	case b.CloudCover == nil:
		return true
	}
	return *a.CloudCover < *b.CloudCover
}

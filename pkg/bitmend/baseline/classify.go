package baseline

import "github.com/jamesainslie/bitmend/pkg/bitmend/types"

// Classify compares a fresh fingerprint with the prior record.
//
//	prior   digest equal   newer mtime   outcome
//	absent  -              -             NewlyTracked
//	present yes            -             Unchanged
//	present no             yes           UpdatedNewer
//	present no             no/equal      CorruptionDetected
//
// Only NewlyTracked and UpdatedNewer lead to a write.
func Classify(prev *FileRecord, fresh FileRecord) types.Outcome {
	switch {
	case prev == nil:
		return types.NewlyTracked
	case prev.Digest == fresh.Digest:
		return types.Unchanged
	case fresh.Modified.After(prev.Modified):
		return types.UpdatedNewer
	default:
		return types.CorruptionDetected
	}
}

func writes(o types.Outcome) bool {
	return o == types.NewlyTracked || o == types.UpdatedNewer
}

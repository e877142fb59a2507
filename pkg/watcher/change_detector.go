package watcher

// ChangeAnalysis says what a change to the change file requires
type ChangeAnalysis struct {
	NeedReload bool // re-read the file and apply its overrides
	Reason     string
}

// AnalyzeChanges decides whether an event should trigger a reload.
//
// Removing the file does not roll back overrides already applied to the
// graph, so there is nothing to recompute.
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	switch event.Type {
	case ChangeTypeWrite:
		return &ChangeAnalysis{NeedReload: true, Reason: "change file written"}
	case ChangeTypeCreate:
		return &ChangeAnalysis{NeedReload: true, Reason: "change file created"}
	default:
		return &ChangeAnalysis{NeedReload: false, Reason: "change file removed"}
	}
}

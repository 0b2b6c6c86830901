package pubsub

// SyncJob requests one sync run for a repository.
type SyncJob struct {
	Repo     string
	FullSync bool
}

// ReclusterJob requests a cluster rebuild for one (repo, product) bucket.
type ReclusterJob struct {
	Repo          string
	Product       string
	TargetVersion string
	Threshold     float64
	TopK          int
}

// Job is the union delivered to the serve loop; exactly one field is set.
type Job struct {
	Sync      *SyncJob
	Recluster *ReclusterJob
}

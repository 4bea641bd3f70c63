package queuenames

const (
	TranscriptCheck = "transcript_check"
	CachePurge      = "cache_purge"
)

var Priority = []string{
	TranscriptCheck,
	CachePurge,
}

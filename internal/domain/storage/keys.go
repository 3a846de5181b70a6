package storage

// Keys shared with the browser client so an exported storage stays readable.
const (
	UserKey           = "threat_analyzer_user"
	AnalysesKeyPrefix = "threat_analyzer_analyses_"
	GuestPartition    = "guest"
)

// AnalysesKey returns the partition key for a user id, the guest partition when empty.
func AnalysesKey(userID string) string {
	if userID == "" {
		return AnalysesKeyPrefix + GuestPartition
	}
	return AnalysesKeyPrefix + userID
}

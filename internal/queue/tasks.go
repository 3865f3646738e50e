package queue

const (
	TypeUsageRecord = "usage:record"
)

const (
	QueueDefault = "default"
	QueueLow     = "low"
)

package rediskeys

const (
	MatchEventsStream = "match3:events"

	// PayloadField holds the JSON body of every stream entry.
	PayloadField = "payload"
)

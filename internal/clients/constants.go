package clients

import "time"

const (
	MAX_RETRIES     = 3
	INITIAL_BACKOFF = 500 * time.Millisecond
	USER_AGENT      = "insightflow-client/1.0 (+https://github.com/spacesedan/insightflow)"
)

const (
	KAFKA_TOPIC_ANALYSIS_PROGRESS = "analysis-progress" // per-run progress events for long runs
	KAFKA_TOPIC_ANALYSIS_BUNDLES  = "analysis-bundles"  // completed analysis bundles
)

const (
	VALKEY_EMBEDDING_PREFIX = "insightflow:embeddings:"
	EMBEDDING_TTL_SECONDS   = 604800 // 7 days
)

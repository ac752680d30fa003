package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "paylimit"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanPolicyUpdate - консоль публикует сюда org_id после сохранения настроек.
	// Все инстансы гейта сбрасывают закэшированную политику этой организации.
	RedisChanPolicyUpdate = RedisNamespace + ":policy-update"
)

// PolicyRefreshAll - сигнал перечитать кэш политик целиком.
const PolicyRefreshAll = "*"

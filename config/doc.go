// Package config loads the semblog service configuration.
//
// Loader starts from DefaultConfig, merges each file layer on top (JSON for
// .json files, YAML otherwise) and finally applies SEMBLOG_* environment
// overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.json") // overrides base
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Layers are merged key by key, so a layer only needs the values it changes.
// Durations are written as strings such as "5s".
//
// # Environment overrides
//
//	SEMBLOG_BIND_ADDRESS     graphql.bind_address
//	SEMBLOG_GRAPHQL_PATH     graphql.path
//	SEMBLOG_GRAPHQL_TIMEOUT  graphql.timeout
//	SEMBLOG_PLAYGROUND       graphql.enable_playground
//	SEMBLOG_LOG_LEVEL        log.level
//	SEMBLOG_LOG_FORMAT       log.format
//	SEMBLOG_METRICS_ENABLED  metrics.enabled
//	SEMBLOG_METRICS_ADDRESS  metrics.address
//	SEMBLOG_NATS_ENABLED     nats.enabled
//	SEMBLOG_NATS_URL         nats.url
//	SEMBLOG_NATS_USERNAME    nats.username
//	SEMBLOG_NATS_PASSWORD    nats.password
//	SEMBLOG_NATS_TOKEN       nats.token
//	SEMBLOG_SEED_ENABLED     seed.enabled
//	SEMBLOG_SEED_USERS       seed.users
//
// # Example
//
//	graphql:
//	  bind_address: ":8080"
//	  timeout: 30s
//	log:
//	  level: debug
//	  format: text
//	metrics:
//	  enabled: true
//	  address: ":9090"
//	subscriptions:
//	  buffer_size: 32
//	nats:
//	  enabled: true
//	  url: nats://localhost:4222
//	seed:
//	  enabled: true
//	  users: 10
package config

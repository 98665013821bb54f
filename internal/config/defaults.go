package config

// Known backend identifiers, resolved through the backend registry at
// startup.
const (
	BackendSqlite = "sqlite"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

const (
	defaultBackend            = BackendSqlite
	defaultQueue              = "default"
	defaultSqlitePath         = "~/.local/share/spool/work_items.db"
	defaultFilesDir           = "~/.local/share/spool/files"
	defaultLogDir             = "~/.local/share/spool/logs"
	defaultInlineThreshold    = 1 << 20
	defaultRedisAddr          = "localhost:6379"
	defaultRedisPoolSize      = 50
	defaultMongoURI           = "mongodb://localhost:27017"
	defaultMongoDatabase      = "spool"
	defaultMongoPoolSize      = 50
	defaultMaxClaimAgeMinutes = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: defaultBackend,
		Queue:   defaultQueue,
		Sqlite: Sqlite{
			Path: defaultSqlitePath,
		},
		Redis: Redis{
			Addr:     defaultRedisAddr,
			PoolSize: defaultRedisPoolSize,
		},
		Mongo: Mongo{
			URI:      defaultMongoURI,
			Database: defaultMongoDatabase,
			PoolSize: defaultMongoPoolSize,
		},
		Files: Files{
			Dir:             defaultFilesDir,
			InlineThreshold: defaultInlineThreshold,
		},
		Recovery: Recovery{
			MaxClaimAgeMinutes: defaultMaxClaimAgeMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
	}
}

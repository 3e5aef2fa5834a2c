package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	id "ccns/pkg/domain"
)

// Role selects which node cmd/server runs.
type Role string

const (
	// RoleLocal runs a source and a destination chain in one process over the
	// in-process substrate.
	RoleLocal Role = "local"
	// RoleSource runs a registry and registrar publishing through Kafka.
	RoleSource Role = "source"
	// RoleDestination runs a registry and receiver consuming from Kafka.
	RoleDestination Role = "destination"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// ChainConfig identifies the local chain and the deployment on it.
type ChainConfig struct {
	Selector id.ChainSelector
	Name     string
	// Deployer holds the admin capability.
	Deployer id.Address
	// Address is where the registrar or receiver is deployed.
	Address     id.Address
	MinGasLimit uint64
}

// TrustedConfig is the single trusted source of a destination node.
type TrustedConfig struct {
	SourceSelector id.ChainSelector
	Registrar      id.Address
}

// LocalConfig configures the destination side of RoleLocal.
type LocalConfig struct {
	DestinationSelector id.ChainSelector
	DestinationAddr     string
	DeliveryInterval    time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	TopicPrefix   string
	ConsumerGroup string
	Replication   int16
	RelayInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is the full process configuration.
type Config struct {
	Role     Role
	Server   Server
	Chain    ChainConfig
	Trusted  TrustedConfig
	Local    LocalConfig
	Router   id.Address
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

// Defaults used when the corresponding variable is unset.
const (
	DefaultAddr        = ":8080"
	DefaultMinGasLimit = 50_000
	DefaultTopicPrefix = "ccns"
)

// FromEnv builds a Config from CCNS_* environment variables so main stays lean.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Role: Role(r.str("CCNS_ROLE", string(RoleLocal))),
		Server: Server{
			Addr:          r.str("CCNS_HTTP_ADDR", DefaultAddr),
			JWTSigningKey: r.str("CCNS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     r.str("CCNS_JWT_ISSUER", "ccns"),
			JWTAudience:   r.str("CCNS_JWT_AUDIENCE", "ccns-api"),
		},
		Chain: ChainConfig{
			Selector:    r.selector("CCNS_CHAIN_SELECTOR", 0),
			Name:        r.str("CCNS_CHAIN_NAME", ""),
			Deployer:    r.address("CCNS_DEPLOYER_ADDRESS"),
			Address:     r.address("CCNS_CONTRACT_ADDRESS"),
			MinGasLimit: r.uint("CCNS_MIN_GAS_LIMIT", DefaultMinGasLimit),
		},
		Trusted: TrustedConfig{
			SourceSelector: r.selector("CCNS_TRUSTED_SOURCE_SELECTOR", 0),
			Registrar:      r.address("CCNS_TRUSTED_REGISTRAR"),
		},
		Local: LocalConfig{
			DestinationSelector: r.selector("CCNS_LOCAL_DESTINATION_SELECTOR", 1000),
			DestinationAddr:     r.str("CCNS_LOCAL_DESTINATION_ADDR", ":8081"),
			DeliveryInterval:    r.duration("CCNS_LOCAL_DELIVERY_INTERVAL", time.Second),
		},
		Router: r.address("CCNS_ROUTER_ADDRESS"),
		Postgres: PostgresConfig{
			DSN:             r.str("CCNS_POSTGRES_DSN", ""),
			MaxOpenConns:    int(r.uint("CCNS_POSTGRES_MAX_OPEN_CONNS", 10)),
			MaxIdleConns:    int(r.uint("CCNS_POSTGRES_MAX_IDLE_CONNS", 5)),
			ConnMaxLifetime: r.duration("CCNS_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          r.str("CCNS_REDIS_URL", ""),
			PoolSize:     int(r.uint("CCNS_REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(r.uint("CCNS_REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  r.duration("CCNS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("CCNS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("CCNS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       r.list("CCNS_KAFKA_BROKERS"),
			TopicPrefix:   r.str("CCNS_KAFKA_TOPIC_PREFIX", DefaultTopicPrefix),
			ConsumerGroup: r.str("CCNS_KAFKA_CONSUMER_GROUP", ""),
			Replication:   int16(r.uint("CCNS_KAFKA_REPLICATION", 1)),
			RelayInterval: r.duration("CCNS_KAFKA_RELAY_INTERVAL", 500*time.Millisecond),
		},
		Log: LogConfig{
			Level:  r.str("CCNS_LOG_LEVEL", "info"),
			Format: r.str("CCNS_LOG_FORMAT", "json"),
		},
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings each role depends on.
func (c Config) Validate() error {
	var errs []error
	switch c.Role {
	case RoleLocal:
	case RoleSource, RoleDestination:
		if c.Chain.Selector == 0 {
			errs = append(errs, errors.New("CCNS_CHAIN_SELECTOR is required"))
		}
		if c.Chain.Deployer.IsZero() {
			errs = append(errs, errors.New("CCNS_DEPLOYER_ADDRESS is required"))
		}
		if c.Chain.Address.IsZero() {
			errs = append(errs, errors.New("CCNS_CONTRACT_ADDRESS is required"))
		}
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("CCNS_POSTGRES_DSN is required"))
		}
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("CCNS_KAFKA_BROKERS is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CCNS_ROLE %q", c.Role))
	}

	if c.Role == RoleDestination {
		if c.Router.IsZero() {
			errs = append(errs, errors.New("CCNS_ROUTER_ADDRESS is required"))
		}
		if c.Trusted.Registrar.IsZero() {
			errs = append(errs, errors.New("CCNS_TRUSTED_REGISTRAR is required"))
		}
		if c.Kafka.ConsumerGroup == "" {
			errs = append(errs, errors.New("CCNS_KAFKA_CONSUMER_GROUP is required"))
		}
	}
	return errors.Join(errs...)
}

// reader collects the first parse error so FromEnv reports it once.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) uint(key string, def uint64) uint64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) selector(key string, def id.ChainSelector) id.ChainSelector {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	sel, err := id.ParseChainSelector(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return sel
}

func (r *reader) address(key string) id.Address {
	v, ok := r.raw(key)
	if !ok {
		return id.ZeroAddress
	}
	addr, err := id.ParseAddress(v)
	if err != nil {
		r.fail(key, err)
		return id.ZeroAddress
	}
	return addr
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

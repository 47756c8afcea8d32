package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/services/repositories"
	"github.com/lac-hong-legacy/lms_api/services/security"
	"github.com/rs/zerolog/log"
)

const (
	SECURITY_SVC = "security_svc"

	defaultCleanupInterval = time.Hour
)

// SecurityService assembles the security suite on Redis and the Postgres audit trail.
type SecurityService struct {
	appContext.DefaultService

	cfg             security.Config
	rulesFile       string
	cleanupInterval time.Duration

	suite   *security.Suite
	store   *security.RedisStore
	audit   *repositories.AuditRepository
	watcher *security.RuleWatcher
	closed  chan struct{}
}

func (svc SecurityService) Id() string {
	return SECURITY_SVC
}

func (svc *SecurityService) Configure(ctx *appContext.Context) error {
	settings, err := loadSecuritySettings(os.Getenv)
	if err != nil {
		return err
	}
	svc.cfg = settings.config
	svc.rulesFile = settings.rulesFile
	svc.cleanupInterval = settings.cleanupInterval
	svc.closed = make(chan struct{})

	return svc.DefaultService.Configure(ctx)
}

func (svc *SecurityService) Start() error {
	redisSvc := svc.Service(REDIS_SVC).(*RedisService)
	postgresSvc := svc.Service(POSTGRES_SVC).(*PostgresService)

	svc.store = security.NewRedisStore(redisSvc.GetClient(), security.DefaultRedisStoreOptions())
	svc.audit = repositories.NewAuditRepository(postgresSvc.Db())

	suite, err := security.NewSuite(svc.store, svc.audit, svc.cfg, svc.suiteOptions()...)
	if err != nil {
		return fmt.Errorf("failed to build security suite: %w", err)
	}
	svc.suite = suite

	if svc.rulesFile != "" {
		svc.watcher, err = security.WatchRules(svc.rulesFile, suite.Monitor, log.Logger)
		if err != nil {
			return fmt.Errorf("failed to watch rules file: %w", err)
		}
	}

	go svc.cleanupLoop()

	log.Info().
		Int("rules", len(suite.Monitor.Rules())).
		Bool("ddos_enabled", svc.cfg.DDoS.Enabled).
		Dur("cleanup_interval", svc.cleanupInterval).
		Msg("Security service started")
	return nil
}

func (svc *SecurityService) suiteOptions() []security.Option {
	opts := []security.Option{security.WithLogger(log.Logger)}

	if monitoring, ok := svc.Service(MONITORING_SVC).(*MonitoringService); ok {
		opts = append(opts, security.WithRecorder(monitoring))
	}
	if kafkaSvc, ok := svc.Service(KAFKA_SVC).(*KafkaService); ok && kafkaSvc.Enabled() {
		opts = append(opts, security.WithAlertPublisher(kafkaSvc))
	}
	if emailSvc, ok := svc.Service(EMAIL_SVC).(*EmailService); ok && emailSvc.Enabled() {
		opts = append(opts, security.WithAlertPublisher(emailSvc))
	}
	if minioSvc, ok := svc.Service(MINIO_SVC).(*MinIOService); ok && minioSvc.Enabled() {
		opts = append(opts, security.WithForensicsArchive(minioSvc))
	}
	if geoSvc, ok := svc.Service(GEOLOCATION_SVC).(*GeolocationService); ok {
		opts = append(opts, security.WithLocationResolver(geoSvc))
	}
	return opts
}

func (svc *SecurityService) Shutdown() {
	close(svc.closed)
	if svc.watcher != nil {
		_ = svc.watcher.Close()
	}
	if svc.suite != nil {
		svc.suite.Close()
	}
}

func (svc *SecurityService) cleanupLoop() {
	ticker := time.NewTicker(svc.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), svc.cleanupInterval/2)
			if _, err := svc.suite.RunCleanup(ctx); err != nil {
				log.Error().Err(err).Msg("Security cleanup finished with errors")
			}
			cancel()
		case <-svc.closed:
			return
		}
	}
}

func (svc *SecurityService) Suite() *security.Suite {
	return svc.suite
}

func (svc *SecurityService) Audit() *repositories.AuditRepository {
	return svc.audit
}

// ==================== CONFIGURATION ====================

type securitySettings struct {
	config          security.Config
	rulesFile       string
	cleanupInterval time.Duration
}

func loadSecuritySettings(getenv func(string) string) (*securitySettings, error) {
	s := &securitySettings{
		config:          security.DefaultConfig(),
		rulesFile:       getenv("SECURITY_RULES_FILE"),
		cleanupInterval: defaultCleanupInterval,
	}

	if v := getenv("SECURITY_CLEANUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("SECURITY_CLEANUP_INTERVAL: invalid duration %q", v)
		}
		s.cleanupInterval = d
	}

	if s.rulesFile != "" {
		rules, err := security.LoadRules(s.rulesFile)
		if err != nil {
			return nil, fmt.Errorf("SECURITY_RULES_FILE: %w", err)
		}
		s.config.Rules = rules
	}

	ddos := &s.config.DDoS
	if v := getenv("DDOS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DDOS_ENABLED: %w", err)
		}
		ddos.Enabled = enabled
	}
	if v := getenv("DDOS_WHITELIST"); v != "" {
		ddos.Whitelist = splitList(v)
	}
	if v := getenv("DDOS_BLACKLIST"); v != "" {
		ddos.Blacklist = splitList(v)
	}
	if err := envInt(getenv, "DDOS_IP_MAX_REQUESTS", &ddos.IPRateLimit.MaxRequests); err != nil {
		return nil, err
	}
	if err := envInt(getenv, "DDOS_GLOBAL_MAX_REQUESTS", &ddos.GlobalRateLimit.MaxRequests); err != nil {
		return nil, err
	}
	if v := getenv("DDOS_AUTOBLOCK_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold <= 0 || threshold > 100 {
			return nil, fmt.Errorf("DDOS_AUTOBLOCK_THRESHOLD: must be in (0, 100], got %q", v)
		}
		ddos.AutoBlock.RiskThreshold = threshold
	}

	return s, nil
}

func envInt(getenv func(string) string, key string, dst *int) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s: must be a positive integer, got %q", key, v)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

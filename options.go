package admsrelay

import "time"

const (
	defaultBatchSize       = 30
	defaultRetryBatchSize  = 30
	defaultMaxRetry        = 3
	defaultSendTimeout     = 30 * time.Second
	defaultPollInterval    = 20 * time.Second
	defaultPollFaultDelay  = 180 * time.Second
	defaultRetryInterval   = 60 * time.Second
	defaultRetryFaultDelay = 180 * time.Second
	defaultServiceName     = "NITGEN"
)

// Config defines how the pipeline components poll, deliver and retry.
// Each constructor reads the fields relevant to it.
type Config struct {
	BatchSize         int
	RetryBatchSize    int
	MaxRetry          int
	SendTimeout       time.Duration
	FanoutWorkers     int
	PollInterval      time.Duration
	PollFaultDelay    time.Duration
	RetryInterval     time.Duration
	RetryFaultDelay   time.Duration
	BacklogInterval   time.Duration
	ServiceName       string
	NotifyDeliveries  bool
	Notifier          Notifier
	Clock             Clock
	Logger            Logger
	Metrics           Metrics
	FailureClassifier FailureClassifier
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.RetryBatchSize <= 0 {
		c.RetryBatchSize = defaultRetryBatchSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollFaultDelay <= 0 {
		c.PollFaultDelay = defaultPollFaultDelay
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.RetryFaultDelay <= 0 {
		c.RetryFaultDelay = defaultRetryFaultDelay
	}
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.Notifier == nil {
		c.Notifier = NopNotifier{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = defaultFailureClassifier
	}

	return c
}

// Option configures pipeline components.
type Option func(*Config)

// WithBatchSize sets the number of source records handled per poll cycle.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithRetryBatchSize sets the number of attempts redelivered per retry cycle.
func WithRetryBatchSize(size int) Option {
	return func(c *Config) {
		c.RetryBatchSize = size
	}
}

// WithMaxRetry sets the number of failed redeliveries before an attempt is dead-lettered.
func WithMaxRetry(count int) Option {
	return func(c *Config) {
		c.MaxRetry = count
	}
}

// WithSendTimeout bounds a single delivery to a single destination.
func WithSendTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.SendTimeout = timeout
	}
}

// WithFanoutWorkers caps concurrent deliveries per payload.
// Zero uses one worker per destination.
func WithFanoutWorkers(count int) Option {
	return func(c *Config) {
		c.FanoutWorkers = count
	}
}

// WithPollInterval sets the delay between poll cycles.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithPollFaultDelay caps the delay after a failed poll cycle.
func WithPollFaultDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.PollFaultDelay = delay
	}
}

// WithRetryInterval sets the delay between retry cycles.
func WithRetryInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.RetryInterval = interval
	}
}

// WithRetryFaultDelay caps the delay after a failed retry cycle.
func WithRetryFaultDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.RetryFaultDelay = delay
	}
}

// WithBacklogInterval sets the minimum interval between queue backlog samples.
// Zero, the default, samples after every retry cycle.
func WithBacklogInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.BacklogInterval = interval
	}
}

// WithServiceName sets the name used in notice titles.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithNotifier sets the operator notice channel.
func WithNotifier(notifier Notifier) Option {
	return func(c *Config) {
		c.Notifier = notifier
	}
}

// WithDeliveryNotices enables a notice for every successful delivery.
func WithDeliveryNotices(enabled bool) Option {
	return func(c *Config) {
		c.NotifyDeliveries = enabled
	}
}

// WithClock sets the time source.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithFailureClassifier sets the retry/dead-letter decision for redelivery failures.
func WithFailureClassifier(classifier FailureClassifier) Option {
	return func(c *Config) {
		c.FailureClassifier = classifier
	}
}

func buildConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg.withDefaults()
}

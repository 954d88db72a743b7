package verifier

import "time"

const (
	DefaultConfigFile = "/etc/dvn/config.toml"

	// DefaultConfirmationInitialDelay is the backoff unit of the confirmation gate.
	DefaultConfirmationInitialDelay = time.Second
	// MaxConfirmationAttempts caps how many times the confirmation gate polls a chain.
	MaxConfirmationAttempts = 10

	DefaultPollInterval       = 5 * time.Second
	DefaultMaxBlockRange      = 2000
	DefaultMaxConcurrentJobs  = 16
	DefaultMaxRequeueAttempts = 5

	DefaultVerifiedCacheSize = 10_000
	DefaultVerifiedCacheTTL  = 10 * time.Minute

	DefaultInfoServerAddress = ":8080"

	// PrivateKeyEnvVar names the environment variable holding the node's hex encoded ECDSA key.
	PrivateKeyEnvVar = "DVN_PRIVATE_KEY"
	// KeystorePasswordEnvVar names the environment variable holding the password of Config.KeystoreFile.
	KeystorePasswordEnvVar = "DVN_KEYSTORE_PASSWORD"
	// ConfigPathEnvVar overrides DefaultConfigFile.
	ConfigPathEnvVar = "DVN_CONFIG"
)

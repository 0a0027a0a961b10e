package envvar

const (
	// HandCBCTEnv is the environment variable used to determine the environment
	HandCBCTEnv = "HANDCBCT_ENV"

	// HandCBCTCacheDir is the environment variable overriding the cache directory
	HandCBCTCacheDir = "HANDCBCT_CACHE_DIR"

	// HandCBCTConfig is the environment variable overriding the config file path
	HandCBCTConfig = "HANDCBCT_CONFIG"

	// HandCBCTReleaseAPI is the environment variable overriding the release API base URL
	HandCBCTReleaseAPI = "HANDCBCT_RELEASE_API"
)

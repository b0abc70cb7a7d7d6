// Package archive uploads finished job artifacts to S3 or an S3-compatible
// store.
package archive

// Config configures the artifact archiver.
//
// Authentication follows the AWS SDK v2 default chain unless explicit keys
// are set: environment variables, shared credentials file, shared config
// profile, then instance metadata. For S3-compatible stores (MinIO, Wasabi,
// DigitalOcean Spaces) set Endpoint and usually ForcePathStyle.
type Config struct {
	// Enabled turns archiving on. When false the rest of the config is
	// ignored.
	Enabled bool `mapstructure:"enabled"`

	// Bucket is the destination bucket (required when enabled).
	Bucket string `mapstructure:"bucket"`

	// Region is the AWS region. When Endpoint is set most stores ignore
	// it; for AWS S3 the SDK resolves it from env/profile when empty.
	Region string `mapstructure:"region"`

	// Endpoint is a custom endpoint URL for S3-compatible stores. Leave
	// empty for AWS S3.
	Endpoint string `mapstructure:"endpoint"`

	// Prefix is prepended to every object key.
	Prefix string `mapstructure:"prefix"`

	// Profile selects an AWS shared-config profile.
	Profile string `mapstructure:"profile"`

	// AccessKeyID and SecretAccessKey are explicit credentials; both must
	// be set together and take precedence over the default chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// ForcePathStyle forces path-style URLs (bucket in path, not
	// subdomain), required by most S3-compatible stores.
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

// ConfigError reports an invalid archiver configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "archive config: " + e.Field + ": " + e.Message
}

// Validate checks required fields for an enabled archiver.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

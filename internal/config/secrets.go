package config

import "slices"

// mask replaces secret values in log output. Empty secrets stay empty so the
// log still shows which credentials were configured at all.
const mask = "***"

// Redacted returns a copy of the configuration that is safe to log: secret
// fields are masked and slices are cloned so the copy cannot alias the
// original.
func (c *Config) Redacted() Config {
	out := *c
	for _, secret := range []*string{
		&out.Server.APIKey,
		&out.Redis.Password,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *secret != "" {
			*secret = mask
		}
	}
	out.Server.CORSOrigins = slices.Clone(c.Server.CORSOrigins)
	return out
}

package config

import "fmt"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Venues.RPCURL)

	// API keys are secrets themselves; keep the actor names, hide the keys.
	if cfg.Server.APIKeys != nil {
		out.Server.APIKeys = make(map[string]string, len(cfg.Server.APIKeys))
		i := 0
		for _, actor := range cfg.Server.APIKeys {
			i++
			out.Server.APIKeys[fmt.Sprintf("%s%d", redacted, i)] = actor
		}
	}

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Server.CORSOrigins = copySlice(cfg.Server.CORSOrigins)
	out.Notify.Events = copySlice(cfg.Notify.Events)
	out.Scanner.Assets = copySlice(cfg.Scanner.Assets)
	out.Scanner.Venues = copySlice(cfg.Scanner.Venues)
	if cfg.Venues.Tokens != nil {
		out.Venues.Tokens = make(map[string]string, len(cfg.Venues.Tokens))
		for k, v := range cfg.Venues.Tokens {
			out.Venues.Tokens[k] = v
		}
	}
	if cfg.Auth.Actors != nil {
		out.Auth.Actors = make(map[string]string, len(cfg.Auth.Actors))
		for k, v := range cfg.Auth.Actors {
			out.Auth.Actors[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func copySlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

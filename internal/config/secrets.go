package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Episode.TradeSizes = append([]float64(nil), cfg.Episode.TradeSizes...)
	out.Episode.StopLoss = append([]float64(nil), cfg.Episode.StopLoss...)
	out.Episode.TakeProfit = append([]float64(nil), cfg.Episode.TakeProfit...)
	out.Episode.BracketDurations = append([]int(nil), cfg.Episode.BracketDurations...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

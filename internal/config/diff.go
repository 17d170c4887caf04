package config

import (
	"strings"

	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. The telegram token is never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)))
	}

	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.String("engine.poll_interval", newCfg.Engine.PollInterval),
			logx.Int("engine.batch_size", newCfg.Engine.BatchSize),
			logx.String("engine.catch_up_window", newCfg.Engine.CatchUpWindow),
			logx.Int("engine.rate_per_sec", newCfg.Engine.RatePerSec),
		)
	}

	if oldCfg.Tournaments != newCfg.Tournaments {
		changed = append(changed, "tournaments")
		attrs = append(attrs,
			logx.Bool("tournaments.enabled", newCfg.Tournaments.Enabled),
			logx.String("tournaments.reconcile_interval", newCfg.Tournaments.ReconcileInterval),
		)
	}

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	return changed, attrs
}

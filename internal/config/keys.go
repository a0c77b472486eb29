package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "RECAP_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "RECAP_SERVER_MCP_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
	},
	{
		env: "RECAP_API_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
	},
	{
		env: "RECAP_SLACK_BOT_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Slack.BotToken = v.(string) },
	},
	{
		env: "RECAP_SLACK_SIGNING_SECRET", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Slack.SigningSecret = v.(string) },
	},
	{
		env: "RECAP_OPENAI_API_KEY", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
	},
	{
		env: "RECAP_OPENAI_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
	},
	{
		env: "RECAP_OPENAI_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
	},
	{
		env: "RECAP_STORAGE_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "RECAP_SCHEDULE_EOD_ENABLED", typ: kBool,
		apply: func(cfg *Config, v any) { cfg.Schedule.EODEnabled = v.(bool) },
	},
	{
		env: "RECAP_SCHEDULE_EOD_CRON", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Schedule.EODCron = v.(string) },
	},
	{
		env: "RECAP_SCHEDULE_EOW_ENABLED", typ: kBool,
		apply: func(cfg *Config, v any) { cfg.Schedule.EOWEnabled = v.(bool) },
	},
	{
		env: "RECAP_SCHEDULE_EOW_CRON", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Schedule.EOWCron = v.(string) },
	},
	{
		env: "RECAP_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

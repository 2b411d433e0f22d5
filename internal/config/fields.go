package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field is a named accessor pair over one tunable configuration value.
type Field struct {
	Get func(*Config) string
	Set func(*Config, string) error
}

// Fields is the registry behind getconfiguration and setconfiguration.
// Names are lower case.
var Fields = map[string]Field{
	"limits.command_threads":           intField(func(c *Config) *int { return &c.Limits.CommandThreads }, 1),
	"limits.notification_threads":      intField(func(c *Config) *int { return &c.Limits.NotificationThreads }, 1),
	"limits.instant_message_threads":   intField(func(c *Config) *int { return &c.Limits.InstantMessageThreads }, 1),
	"limits.rlv_threads":               intField(func(c *Config) *int { return &c.Limits.RLVThreads }, 1),
	"limits.callback_queue_length":     intField(func(c *Config) *int { return &c.Limits.CallbackQueueLength }, 1),
	"limits.notification_queue_length": intField(func(c *Config) *int { return &c.Limits.NotificationQueueLength }, 1),
	"limits.callback_timeout":          durationField(func(c *Config) *string { return &c.Limits.CallbackTimeout }),
	"limits.callback_throttle":         durationField(func(c *Config) *string { return &c.Limits.CallbackThrottle }),
	"limits.notification_timeout":      durationField(func(c *Config) *string { return &c.Limits.NotificationTimeout }),
	"limits.notification_throttle":     durationField(func(c *Config) *string { return &c.Limits.NotificationThrottle }),
	"session.services_timeout":         durationField(func(c *Config) *string { return &c.Session.ServicesTimeout }),
	"session.data_timeout":             durationField(func(c *Config) *string { return &c.Session.DataTimeout }),
	"session.range":                    intField(func(c *Config) *int { return &c.Session.Range }, 1),
	"rlv.enabled":                      boolField(func(c *Config) *bool { return &c.RLV.Enabled }),
	"command_channel":                  intField(func(c *Config) *int { return &c.CommandChannel }, 0),
	"server.compression":               choiceField(func(c *Config) *string { return &c.Server.Compression }, "none", "gzip", "deflate"),
}

// FieldNames lists the registry in sorted order.
func FieldNames() []string {
	out := make([]string, 0, len(Fields))
	for name := range Fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LookupField resolves a field name case-insensitively.
func LookupField(name string) (Field, bool) {
	f, ok := Fields[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

func intField(ptr func(*Config) *int, min int) Field {
	return Field{
		Get: func(c *Config) string { return strconv.Itoa(*ptr(c)) },
		Set: func(c *Config, v string) error {
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("not an integer: %s", v)
			}
			if i < min {
				return fmt.Errorf("must be >= %d", min)
			}
			*ptr(c) = i
			return nil
		},
	}
}

func durationField(ptr func(*Config) *string) Field {
	return Field{
		Get: func(c *Config) string { return *ptr(c) },
		Set: func(c *Config, v string) error {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil || d <= 0 {
				return fmt.Errorf("not a positive duration: %s", v)
			}
			*ptr(c) = d.String()
			return nil
		},
	}
}

func boolField(ptr func(*Config) *bool) Field {
	return Field{
		Get: func(c *Config) string { return strconv.FormatBool(*ptr(c)) },
		Set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("not a boolean: %s", v)
			}
			*ptr(c) = b
			return nil
		},
	}
}

func choiceField(ptr func(*Config) *string, choices ...string) Field {
	return Field{
		Get: func(c *Config) string { return *ptr(c) },
		Set: func(c *Config, v string) error {
			v = strings.ToLower(strings.TrimSpace(v))
			for _, choice := range choices {
				if v == choice {
					*ptr(c) = v
					return nil
				}
			}
			return fmt.Errorf("must be one of %s", strings.Join(choices, ", "))
		},
	}
}

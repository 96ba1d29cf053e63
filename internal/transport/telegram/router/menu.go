package router

import (
	"sort"
	"strings"
	"unicode"

	kit "github.com/Lazy-dev-hash/tg-gag-bot/internal/transport"
)

// sanitizeTelegramCommand converts an arbitrary command/alias into a
// Telegram-safe bot command name ([a-z0-9_]{1,32}).
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if r == '_' {
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
		// Common separators become underscores.
		if r == '-' || unicode.IsSpace(r) || r == '/' {
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
		// drop anything else
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out == "" {
		return ""
	}
	// Telegram clients generally expect commands to start with a letter.
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

func buildTelegramMenuCommands(cmds []Command) []kit.BotCommand {
	byCmd := map[string]kit.BotCommand{}
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" {
			continue
		}
		desc := strings.TrimSpace(strings.ReplaceAll(c.Description, "\n", " "))
		if desc == "" {
			desc = name
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		if _, ok := byCmd[name]; !ok {
			byCmd[name] = kit.BotCommand{Command: name, Description: desc}
		}
	}

	out := make([]kit.BotCommand, 0, len(byCmd))
	for _, e := range byCmd {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}

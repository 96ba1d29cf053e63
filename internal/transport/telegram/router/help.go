package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders Telegram-friendly help in HTML parse mode.
func (m *CommandManager) helpText(args []string) string {
	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(args[0]), "/"))
		m.mu.RLock()
		cmd := m.cmds[name]
		if cmd == nil {
			cmd = m.alias[name]
		}
		m.mu.RUnlock()
		if cmd == nil {
			return m.helpUnknownHTML()
		}
		return m.helpCommandHTML(*cmd)
	}
	return m.helpTopHTML()
}

func (m *CommandManager) helpUnknownHTML() string {
	return strings.Join([]string{
		"❓ <b>Unknown command</b>",
		"Type <code>/help</code> to list available commands.",
	}, "\n")
}

func (m *CommandManager) helpTopHTML() string {
	cmds := m.Commands()

	// Owner-only commands sink to the bottom, alphabetical within groups.
	sort.SliceStable(cmds, func(i, j int) bool {
		li, lj := cmds[i].Access == AccessOwnerOnly, cmds[j].Access == AccessOwnerOnly
		if li != lj {
			return !li && lj
		}
		return cmds[i].Name < cmds[j].Name
	})

	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;command&gt;</code> for details.",
		"",
	}
	for _, c := range cmds {
		suffix := ""
		if d := strings.TrimSpace(c.Description); d != "" {
			suffix = " — " + html.EscapeString(d)
		}
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		lines = append(lines, prefix+"<code>/"+html.EscapeString(c.Name)+"</code>"+suffix)
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func (m *CommandManager) helpCommandHTML(c Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}

	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 <i>Owner only</i>")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>")
		lines = append(lines, "<code>"+html.EscapeString(u)+"</code>")
	}
	if len(c.Aliases) > 0 {
		aliases := append([]string(nil), c.Aliases...)
		sort.Strings(aliases)
		lines = append(lines, "", "<b>Aliases</b>")
		for _, a := range aliases {
			lines = append(lines, "• <code>/"+html.EscapeString(a)+"</code>")
		}
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	prevEmpty := false
	for _, s := range in {
		empty := strings.TrimSpace(s) == ""
		if empty && prevEmpty {
			continue
		}
		out = append(out, s)
		prevEmpty = empty
	}
	return out
}

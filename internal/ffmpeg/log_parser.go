package ffmpeg

import "strings"

// ParseLogLevel splits a line printed with -loglevel level+info into its
// level and message. Both "[level] msg" and
// "[component @ 0x...] [level] msg" are understood; in the second form the
// component prefix is kept in the message. Lines without a level are info.
func ParseLogLevel(line string) (level, msg string) {
	first, rest, ok := cutBracket(line)
	if !ok {
		return "info", line
	}
	if isLogLevel(first) {
		return first, rest
	}

	second, tail, ok := cutBracket(rest)
	if ok && isLogLevel(second) {
		return second, line[:len(line)-len(rest)] + tail
	}
	return "info", line
}

// cutBracket splits "[x] rest" into x and rest.
func cutBracket(s string) (inner, rest string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", s, false
	}
	end := strings.Index(s, "] ")
	if end == -1 {
		return "", s, false
	}
	return s[1:end], s[end+2:], true
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

package tmpl

import "strings"

// Vars holds the runtime values available to hook templates.
type Vars struct {
	Source   string // source image path
	Output   string // output directory; empty for in-memory runs
	Count    string // number of renditions written
	Bytes    string // human-readable total size
	Duration string // compact duration, e.g. "1.2s"
	Status   string // "success" | "failure"
	Error    string // error message on failure
}

// Expand replaces {source}, {output}, {count}, {bytes}, {duration},
// {status}, {Status} (title-cased) and {error} in s.
func Expand(s string, v Vars) string {
	r := strings.NewReplacer(
		"{source}", v.Source,
		"{output}", v.Output,
		"{count}", v.Count,
		"{bytes}", v.Bytes,
		"{duration}", v.Duration,
		"{Status}", TitleCase(v.Status),
		"{status}", v.Status,
		"{error}", v.Error,
	)
	return r.Replace(s)
}

// TitleCase uppercases the first byte of s.
func TitleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

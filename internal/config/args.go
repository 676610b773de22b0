package config

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

var argPattern = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// SplitArguments splits a command line on whitespace. Double-quoted runs are
// kept together with the quotes removed.
func SplitArguments(s string) []string {
	var args []string
	for _, m := range argPattern.FindAllStringSubmatchIndex(s, -1) {
		if m[2] >= 0 {
			args = append(args, s[m[2]:m[3]])
			continue
		}
		args = append(args, s[m[4]:m[5]])
	}
	return args
}

// JavaOptions renders WILDFLY_JAVA_OPTS as a template with the settings as
// data and the sprig function set, then splits the result.
//
//	WILDFLY_JAVA_OPTS='-Xmx{{ default "512m" (env "HEAP") }} -Dhome={{ .JBossHome }}'
func (s *Settings) JavaOptions() ([]string, error) {
	rendered, err := s.render("java-opts", s.JavaOpts)
	if err != nil {
		return nil, err
	}
	return SplitArguments(rendered), nil
}

// ServerArguments renders and splits WILDFLY_SERVER_ARGS.
func (s *Settings) ServerArguments() ([]string, error) {
	rendered, err := s.render("server-args", s.ServerArgs)
	if err != nil {
		return nil, err
	}
	return SplitArguments(rendered), nil
}

func (s *Settings) render(name, text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return "", fmt.Errorf("invalid %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

package launchdesc

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-launch-go/pkg/errors"

	"github.com/mattn/go-shellwords"
)

func normalizeApps(rawApps []*rawApp, options DecodeOptions) ([]AppSpec, error) {
	apps := make([]AppSpec, 0, len(rawApps))
	seenNames := make(map[string]int)

	for i, raw := range rawApps {
		// A null entry is an app with every field missing
		if raw == nil {
			raw = &rawApp{}
		}
		app, err := normalizeApp(*raw, options)
		if err != nil {
			return nil, errors.NewValidationError(
				fmt.Sprintf("invalid app at index %d", i),
				err,
			).WithContext("app_index", i).WithContext("app_name", raw.Name)
		}

		if prevIndex, exists := seenNames[app.Name]; exists {
			return nil, errors.NewDuplicateNameError(app.Name, prevIndex, i).WithContext("app_index", i)
		}
		seenNames[app.Name] = i

		apps = append(apps, app)
	}

	return apps, nil
}

func normalizeApp(raw rawApp, options DecodeOptions) (AppSpec, error) {
	if err := checkRequired(raw); err != nil {
		return AppSpec{}, err
	}

	workingDirectory, err := resolveAlias("workingDirectory", raw.WorkingDirectory, "cwd", raw.Cwd)
	if err != nil {
		return AppSpec{}, err
	}
	command, err := resolveAlias("command", raw.Command, "script", raw.Script)
	if err != nil {
		return AppSpec{}, err
	}
	environment, err := resolveEnvAlias(raw.Environment, raw.Env)
	if err != nil {
		return AppSpec{}, err
	}
	ignoreWatch, err := resolveIgnoreWatchAlias(raw.IgnoreWatch, raw.IgnoreWatchAlias)
	if err != nil {
		return AppSpec{}, err
	}

	workingDirectory, err = resolveWorkingDirectory(workingDirectory, options.BaseDir)
	if err != nil {
		return AppSpec{}, err
	}

	args, err := resolveArgs(raw.Args)
	if err != nil {
		return AppSpec{}, err
	}

	if err := validateEnvironment(environment); err != nil {
		return AppSpec{}, err
	}

	if err := validateIgnoreWatch(ignoreWatch); err != nil {
		return AppSpec{}, err
	}

	return AppSpec{
		Name:             raw.Name,
		WorkingDirectory: workingDirectory,
		Command:          command,
		Args:             args,
		Watch:            raw.Watch,
		Environment:      environment,
		IgnoreWatch:      ignoreWatch,
	}, nil
}

// checkRequired runs before alias resolution so a missing field wins over a conflict
func checkRequired(raw rawApp) error {
	if isBlank(raw.Name) {
		return errors.NewMissingFieldError("name")
	}
	if isBlank(raw.WorkingDirectory) && isBlank(raw.Cwd) {
		return errors.NewMissingFieldError("workingDirectory")
	}
	if isBlank(raw.Command) && isBlank(raw.Script) {
		return errors.NewMissingFieldError("command")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// resolveAlias merges a canonical key with its pm2 spelling
func resolveAlias(field, value, alias, aliasValue string) (string, error) {
	switch {
	case value == "":
		return aliasValue, nil
	case aliasValue == "" || aliasValue == value:
		return value, nil
	default:
		return "", errors.NewConflictingFieldError(field, alias)
	}
}

func resolveEnvAlias(environment, env envMap) (map[string]string, error) {
	if environment != nil && env != nil && !sameEnv(environment, env) {
		return nil, errors.NewConflictingFieldError("environment", "env")
	}

	source := environment
	if source == nil {
		source = env
	}

	result := make(map[string]string, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result, nil
}

func sameEnv(a, b envMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

func resolveIgnoreWatchAlias(ignoreWatch, alias []string) ([]string, error) {
	if len(ignoreWatch) == 0 {
		ignoreWatch = alias
	} else if len(alias) > 0 && strings.Join(ignoreWatch, "\x00") != strings.Join(alias, "\x00") {
		return nil, errors.NewConflictingFieldError("ignoreWatch", "ignore_watch")
	}
	if len(ignoreWatch) == 0 {
		return nil, nil
	}
	return append([]string(nil), ignoreWatch...), nil
}

func resolveWorkingDirectory(workingDirectory, baseDir string) (string, error) {
	if filepath.IsAbs(workingDirectory) {
		return workingDirectory, nil
	}
	if baseDir == "" {
		return "", errors.NewInvalidValueError(
			"workingDirectory",
			fmt.Sprintf("working directory must be an absolute path: %s", workingDirectory),
			nil,
		)
	}
	return filepath.Join(baseDir, workingDirectory), nil
}

// resolveArgs splits a single args string with POSIX shell word rules
// (quotes and escapes, no variable or backtick expansion); lists pass through.
func resolveArgs(value argsValue) ([]string, error) {
	if value.list != nil {
		return append([]string{}, value.list...), nil
	}
	if value.line == nil {
		return []string{}, nil
	}

	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false

	args, err := parser.Parse(*value.line)
	if err != nil {
		return nil, errors.NewInvalidValueError("args", fmt.Sprintf("failed to split args: %q", *value.line), err)
	}
	// Parse stops at an unquoted shell operator and records where
	if parser.Position >= 0 {
		return nil, errors.NewInvalidValueError(
			"args",
			fmt.Sprintf("shell operators are not supported in args: %q", *value.line),
			nil,
		).WithContext("position", parser.Position)
	}
	if args == nil {
		args = []string{}
	}
	return args, nil
}

func validateEnvironment(environment map[string]string) error {
	for key := range environment {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return errors.NewInvalidValueError(
				"environment",
				fmt.Sprintf("invalid environment variable name: %q", key),
				nil,
			)
		}
	}
	return nil
}

func validateIgnoreWatch(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return errors.NewInvalidValueError(
				"ignoreWatch",
				fmt.Sprintf("invalid ignore pattern: %q", pattern),
				err,
			)
		}
	}
	return nil
}
